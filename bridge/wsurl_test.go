package bridge

import (
	"encoding/base64"
	"net/url"
	"strings"
	"testing"

	"github.com/obsidionlabs/bridge-go/bridgecrypto"
	"github.com/obsidionlabs/bridge-go/envelope"
)

func TestGetWSURLCreator(t *testing.T) {
	u := getWSURLCreator("wss://bridge.example", "abcd")
	parsed, err := url.Parse(u)
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	if parsed.Query().Get("id") != "abcd" {
		t.Fatalf("expected id=abcd, got %q", parsed.Query().Get("id"))
	}
	if parsed.Query().Get("moc") != "" {
		t.Fatal("creator URL must never carry moc")
	}
}

func TestGetWSURLJoinerBeforeEstablishment(t *testing.T) {
	creatorKP, err := bridgecrypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	joinerKP, err := bridgecrypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	creatorPub := creatorKP.PublicKey()
	remote, err := bridgecrypto.ParsePublicKey(creatorPub[:])
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}

	u, err := getWSURLJoiner("wss://bridge.example", "bridge-1", false, joinerKP, remote)
	if err != nil {
		t.Fatalf("getWSURLJoiner: %v", err)
	}
	parsed, err := url.Parse(u)
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	if parsed.Query().Get("id") != "bridge-1" {
		t.Fatalf("expected id=bridge-1, got %q", parsed.Query().Get("id"))
	}
	moc := parsed.Query().Get("moc")
	if moc == "" {
		t.Fatal("expected a moc parameter before the secure channel is established")
	}
	raw, err := base64.StdEncoding.DecodeString(moc)
	if err != nil {
		t.Fatalf("decode moc: %v", err)
	}
	outer, err := envelope.ParseOuter(raw)
	if err != nil {
		t.Fatalf("envelope.ParseOuter(moc): %v", err)
	}
	if outer.Method != envelope.MethodHandshake {
		t.Fatalf("expected handshake method in moc, got %q", outer.Method)
	}
}

func TestGetWSURLJoinerAfterEstablishment(t *testing.T) {
	joinerKP, err := bridgecrypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	u, err := getWSURLJoiner("wss://bridge.example", "bridge-1", true, joinerKP, nil)
	if err != nil {
		t.Fatalf("getWSURLJoiner: %v", err)
	}
	parsed, err := url.Parse(u)
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	if parsed.Query().Get("moc") != "" {
		t.Fatal("expected no moc parameter once the secure channel is established")
	}
	if parsed.Query().Get("id") != "bridge-1" {
		t.Fatalf("expected id=bridge-1, got %q", parsed.Query().Get("id"))
	}
}

func TestOriginHeaderValue(t *testing.T) {
	if got := originHeaderValue(""); got != "nodejs" {
		t.Fatalf("expected %q for an empty origin, got %q", "nodejs", got)
	}
	if got := originHeaderValue("https://localhost"); got != "https://localhost" {
		t.Fatalf("expected origin to pass through, got %q", got)
	}
}

func TestGetWSURLCreatorEscapesBridgeID(t *testing.T) {
	u := getWSURLCreator("wss://bridge.example/path", "id with space")
	if !strings.Contains(u, "id=id+with+space") {
		t.Fatalf("expected escaped id, got %q", u)
	}
}
