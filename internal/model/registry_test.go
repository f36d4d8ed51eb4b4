package model

import (
	"os"
	"path/filepath"
	"testing"

	"ember/pkg/util"
)

func writeRegistryFile(t *testing.T, dir, name string, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRegistryLoadListsEveryValidEntry(t *testing.T) {
	dir := t.TempDir()
	path := writeRegistryFile(t, dir, "models.json", `{
		"en-small": {"id":"en-small","url":"https://models.ember.local/en-small.zip","sha256":"abc","size":100,"language":"en","wake_phrase":"hey ember","human_description":"English, small"},
		"fr-small": {"id":"fr-small","url":"https://models.ember.local/fr-small.zip","sha256":"def","size":120,"language":"fr","wake_phrase":"dis ember","human_description":"French, small"}
	}`)

	reg := NewRegistry(path)
	if cerr := reg.Load(); cerr != nil {
		t.Fatal(cerr)
	}

	got := reg.List()
	want := []RegistryEntry{
		{ID: "en-small", URL: "https://models.ember.local/en-small.zip", SHA256: "abc", Size: 100, Language: "en", WakePhrase: "hey ember", HumanDescription: "English, small"},
		{ID: "fr-small", URL: "https://models.ember.local/fr-small.zip", SHA256: "def", Size: 120, Language: "fr", WakePhrase: "dis ember", HumanDescription: "French, small"},
	}

	// List() iterates a map, so compare ignoring order.
	if !util.EqualSlices(got, want, func(a, b RegistryEntry) bool { return a == b }, true) {
		t.Fatalf("registry entries mismatch: got %+v want %+v", got, want)
	}
}

func TestRegistrySkipsInvalidModelIDs(t *testing.T) {
	dir := t.TempDir()
	path := writeRegistryFile(t, dir, "models.json", `{
		"valid-id": {"id":"valid-id","url":"https://models.ember.local/a.zip","sha256":"abc","size":1,"language":"en","wake_phrase":"hey ember"},
		"bad id with spaces": {"id":"bad id with spaces","url":"https://models.ember.local/b.zip","sha256":"def","size":1,"language":"en","wake_phrase":"hey ember"}
	}`)

	reg := NewRegistry(path)
	if cerr := reg.Load(); cerr != nil {
		t.Fatal(cerr)
	}

	if _, ok := reg.Get("bad id with spaces"); ok {
		t.Fatal("expected invalid model id to be skipped")
	}
	if _, ok := reg.Get("valid-id"); !ok {
		t.Fatal("expected valid model id to be loaded")
	}
}

func TestRegistryLoadMissingFileFails(t *testing.T) {
	reg := NewRegistry(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if cerr := reg.Load(); cerr == nil {
		t.Fatal("expected missing registry file to fail")
	}
}
