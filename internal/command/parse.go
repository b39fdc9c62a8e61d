package command

import "strings"

// ParseCommand splits "/name@bot arg1 arg2" into a lower-cased name and its
// arguments. ok is false for plain text and for commands addressed to a
// different bot.
func ParseCommand(text, botIdentity string) (name string, args []string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil, false
	}

	name = strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		target := name[at+1:]
		name = name[:at]
		if botIdentity != "" && !strings.EqualFold(target, botIdentity) {
			return "", nil, false
		}
	}
	if name == "" {
		return "", nil, false
	}
	return strings.ToLower(name), fields[1:], true
}
