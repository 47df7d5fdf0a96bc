package urltemplate

import (
	"reflect"
	"testing"
)

func TestRender_default(t *testing.T) {
	ctx := Context{
		ServerURL:     "http://provider.example:8080",
		Username:      "pu",
		Password:      "pp",
		StreamID:      "555",
		ProgramStart:  "2023-11-14:23-13",
		ProgramLength: "120",
	}
	got := Render(DefaultCatchup, ctx)
	want := "http://provider.example:8080/streaming/timeshift.php?username=pu&password=pp&stream=555&start=2023-11-14:23-13&duration=120"
	if got != want {
		t.Errorf("Render = %q\nwant     %q", got, want)
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		ctx  Context
		want string
	}{
		{"empty template", "", Context{"a": "1"}, ""},
		{"no context", "{a}/{b}", nil, "{a}/{b}"},
		{"unknown token kept", "{a}-{zzz}", Context{"a": "1"}, "1-{zzz}"},
		{"repeated token", "{a}{a}{a}", Context{"a": "x"}, "xxx"},
		{"not recursive", "{a}", Context{"a": "{b}", "b": "boom"}, "{b}"},
		{"value with braces", "{a}/{b}", Context{"a": "{", "b": "}"}, "{/}"},
		{"dotted keys", "{XC.username}@{server.url}", Context{"XC.username": "u", "server.url": "h"}, "u@h"},
		{"unbalanced brace", "{a", Context{"a": "1"}, "{a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Render(tt.tmpl, tt.ctx); got != tt.want {
				t.Errorf("Render(%q) = %q, want %q", tt.tmpl, got, tt.want)
			}
		})
	}
}

func TestTokensAndUnresolved(t *testing.T) {
	tmpl := "{server.url}/x/{stream_id}/{custom}/{stream_id}"
	if got, want := Tokens(tmpl), []string{"server.url", "stream_id", "custom"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Tokens = %v, want %v", got, want)
	}
	got := Unresolved(tmpl, Context{ServerURL: "h", StreamID: "1"})
	if !reflect.DeepEqual(got, []string{"custom"}) {
		t.Errorf("Unresolved = %v", got)
	}
}
