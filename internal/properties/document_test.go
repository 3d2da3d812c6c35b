package properties

import "testing"

func TestParseRoundTripIsByteIdentical(t *testing.T) {
	inputs := []string{
		"",
		"#Minecraft server properties\n#Mon Jan 01 00:00:00 UTC 2024\nmotd=A Minecraft Server\n",
		"a=1\r\nb=2\r\n\r\n# comment\r\nc=3",
		"no separator here\n  indented=yes\n",
	}

	for _, input := range inputs {
		doc := Parse([]byte(input))
		if got := string(doc.Bytes()); got != input {
			t.Fatalf("round trip mismatch:\nwant %q\ngot  %q", input, got)
		}
	}
}

func TestSetUsesExactKeyMatch(t *testing.T) {
	doc := Parse([]byte("rcon.port=25000\nport=1\nquery.port=25565\n"))

	changed, found := doc.Set("port", "2")
	if !changed || !found {
		t.Fatalf("expected port to change, changed=%v found=%v", changed, found)
	}

	if value, _ := doc.Get("rcon.port"); value != "25000" {
		t.Fatalf("rcon.port must not be touched, got %s", value)
	}
	if got := string(doc.Bytes()); got != "rcon.port=25000\nport=2\nquery.port=25565\n" {
		t.Fatalf("unexpected document: %q", got)
	}
}

func TestSetMissingKeyIsNotAppended(t *testing.T) {
	doc := Parse([]byte("motd=hello\n"))

	changed, found := doc.Set("enable-rcon", "true")
	if changed || found {
		t.Fatalf("expected missing key to be reported, changed=%v found=%v", changed, found)
	}
	if got := string(doc.Bytes()); got != "motd=hello\n" {
		t.Fatalf("document must not change, got %q", got)
	}
}

func TestSetIgnoresCommentedKeys(t *testing.T) {
	doc := Parse([]byte("#rcon.port=1\nrcon.port=2\n"))

	if _, found := doc.Set("rcon.port", "3"); !found {
		t.Fatalf("expected key to be found")
	}
	if got := string(doc.Bytes()); got != "#rcon.port=1\nrcon.port=3\n" {
		t.Fatalf("unexpected document: %q", got)
	}
}

func TestEscapedValuesCompareUnescaped(t *testing.T) {
	doc := Parse([]byte(`rcon.password=a\:b\=c` + "\n"))

	value, ok := doc.Get("rcon.password")
	if !ok || value != "a:b=c" {
		t.Fatalf("unexpected value %q", value)
	}

	if changed, _ := doc.Set("rcon.password", "a:b=c"); changed {
		t.Fatalf("equal value must not be rewritten")
	}

	if changed, _ := doc.Set("rcon.password", "x#y"); !changed {
		t.Fatalf("expected change")
	}
	if got := string(doc.Bytes()); got != `rcon.password=x\#y`+"\n" {
		t.Fatalf("unexpected document: %q", got)
	}
}

func TestKeys(t *testing.T) {
	doc := Parse([]byte("# c\na=1\n\nb=2\n"))
	keys := doc.Keys()
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}
