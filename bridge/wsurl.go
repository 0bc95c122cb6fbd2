package bridge

import (
	"encoding/base64"
	"encoding/json"
	"net/url"

	"github.com/obsidionlabs/bridge-go/bridgecrypto"
	"github.com/obsidionlabs/bridge-go/envelope"
	"github.com/obsidionlabs/bridge-go/session"
)

// getWSURLCreator builds the Creator's connect URL (spec §6): the relay
// routes by bridge_id alone, since the Creator is always the one waiting
// for an inbound handshake.
func getWSURLCreator(bridgeURL, bridgeID string) string {
	v := url.Values{}
	v.Set("id", bridgeID)
	return bridgeURL + "?" + v.Encode()
}

// getWSURLJoiner builds the Joiner's connect URL (spec §6). Before the
// secure channel is established, the handshake envelope is piggybacked as
// the "moc" ("message-on-connect") query parameter so the relay broadcasts
// it the instant the socket opens; once established (e.g. on reconnect),
// the Joiner connects the same way as the Creator and the handshake is not
// repeated.
func getWSURLJoiner(bridgeURL, bridgeID string, established bool, kp bridgecrypto.KeyPair, remotePub *bridgecrypto.PublicKey) (string, error) {
	v := url.Values{}
	v.Set("id", bridgeID)
	if established {
		return bridgeURL + "?" + v.Encode(), nil
	}

	pubHex, greetHex, _, err := session.BuildJoinerGreeting(kp, remotePub, bridgeID)
	if err != nil {
		return "", err
	}
	handshake := envelope.Outer{
		Method: envelope.MethodHandshake,
	}
	handshake.ID, err = bridgecrypto.RandomHexID(16)
	if err != nil {
		return "", err
	}
	params, err := json.Marshal(envelope.HandshakeParams{PubKey: pubHex, Greeting: greetHex})
	if err != nil {
		return "", err
	}
	handshake.Params = params
	raw, err := handshake.Marshal()
	if err != nil {
		return "", err
	}
	moc := base64.StdEncoding.EncodeToString(raw)
	v.Set("moc", moc)
	return bridgeURL + "?" + v.Encode(), nil
}

// originHeaderValue implements "non-browser clients send Origin:
// <origin-or-nodejs>" (spec §6).
func originHeaderValue(origin string) string {
	if origin == "" {
		return "nodejs"
	}
	return origin
}
