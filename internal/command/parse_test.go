package command

import (
	"reflect"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text     string
		wantName string
		wantArgs []string
		wantOK   bool
	}{
		{"/add 123 30", "add", []string{"123", "30"}, true},
		{"/ADD@UploadBot 123 30", "add", []string{"123", "30"}, true},
		{"  /plan  ", "plan", []string{}, true},
		{"/add@otherbot 1 2", "", nil, false},
		{"hello there", "", nil, false},
		{"", "", nil, false},
		{"/", "", nil, false},
		{"/@uploadbot", "", nil, false},
	}
	for _, tt := range tests {
		name, args, ok := ParseCommand(tt.text, "uploadbot")
		if ok != tt.wantOK || name != tt.wantName {
			t.Errorf("ParseCommand(%q) = %q, %v, want %q, %v", tt.text, name, ok, tt.wantName, tt.wantOK)
			continue
		}
		if ok && !reflect.DeepEqual(args, tt.wantArgs) {
			t.Errorf("ParseCommand(%q) args = %v, want %v", tt.text, args, tt.wantArgs)
		}
	}
}

func TestParseCommandWithoutIdentity(t *testing.T) {
	name, _, ok := ParseCommand("/free@anybot", "")
	if !ok || name != "free" {
		t.Errorf("got %q, %v, want %q, true", name, ok, "free")
	}
}
