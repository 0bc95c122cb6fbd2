// Command bridge-join opens a Bridge as the Joiner against a Creator's
// connection string: it relays stdin lines to the peer and prints decrypted
// inbound messages to stdout.
package main

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/obsidionlabs/bridge-go/bridge"
	"github.com/obsidionlabs/bridge-go/bridgecrypto"
	"github.com/obsidionlabs/bridge-go/bridgeerr"
	"github.com/obsidionlabs/bridge-go/internal/cmdutil"
	"github.com/obsidionlabs/bridge-go/internal/securefile"
	fsversion "github.com/obsidionlabs/bridge-go/internal/version"
	"github.com/obsidionlabs/bridge-go/observability/prom"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

type ready struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	BridgeID  string `json:"bridge_id"`
	PublicKey string `json:"public_key_hex"`
}

type inboundMessage struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout io.Writer, stderr io.Writer) int {
	showVersion := false

	bridgeURL := cmdutil.EnvString("BRIDGE_URL", "")
	keyFile := cmdutil.EnvString("BRIDGE_KEY_FILE", "")
	resume := false
	pingInterval, err := cmdutil.EnvDuration("BRIDGE_PING_INTERVAL", 0)
	if err != nil {
		fmt.Fprintf(stderr, "invalid BRIDGE_PING_INTERVAL: %v\n", err)
		return 2
	}
	connectTimeout, err := cmdutil.EnvDuration("BRIDGE_CONNECT_TIMEOUT", 0)
	if err != nil {
		fmt.Fprintf(stderr, "invalid BRIDGE_CONNECT_TIMEOUT: %v\n", err)
		return 2
	}
	maxReconnects, err := cmdutil.EnvInt("BRIDGE_MAX_RECONNECT_ATTEMPTS", 0)
	if err != nil {
		fmt.Fprintf(stderr, "invalid BRIDGE_MAX_RECONNECT_ATTEMPTS: %v\n", err)
		return 2
	}
	noReconnect := false
	metricsListen := cmdutil.EnvString("BRIDGE_METRICS_LISTEN", "")
	pretty := false
	overwriteKeyFile := false

	fs := flag.NewFlagSet("bridge-join", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&showVersion, "version", false, "print version and exit")
	fs.StringVar(&bridgeURL, "bridge-url", bridgeURL, "relay base url (default: the library default) (env: BRIDGE_URL)")
	fs.StringVar(&keyFile, "key-file", keyFile, "path to a persisted 32-byte private key (created if missing) (env: BRIDGE_KEY_FILE)")
	fs.BoolVar(&overwriteKeyFile, "overwrite-key-file", false, "overwrite an existing --key-file instead of loading it")
	fs.BoolVar(&resume, "resume", false, "resume a previously established session (requires --key-file)")
	fs.DurationVar(&pingInterval, "ping-interval", pingInterval, "keepalive ping period (env: BRIDGE_PING_INTERVAL)")
	fs.DurationVar(&connectTimeout, "connect-timeout", connectTimeout, "per-dial connect timeout (env: BRIDGE_CONNECT_TIMEOUT)")
	fs.IntVar(&maxReconnects, "max-reconnect-attempts", maxReconnects, "reconnect attempt ceiling (env: BRIDGE_MAX_RECONNECT_ATTEMPTS)")
	fs.BoolVar(&noReconnect, "no-reconnect", false, "disable automatic reconnection")
	fs.StringVar(&metricsListen, "metrics-listen", metricsListen, "listen address for a Prometheus metrics endpoint (empty disables) (env: BRIDGE_METRICS_LISTEN)")
	fs.BoolVar(&pretty, "pretty", false, "pretty-print the initial status JSON")
	fs.Usage = func() {
		out := fs.Output()
		fmt.Fprintln(out, "Usage:")
		fmt.Fprintln(out, "  bridge-join <connection-string> [flags]")
		fmt.Fprintln(out, "")
		fmt.Fprintln(out, "Reads newline-delimited {\"method\":...,\"params\":...} JSON objects from")
		fmt.Fprintln(out, "stdin and sends each as a secure message. Prints one JSON line per")
		fmt.Fprintln(out, "received secure message.")
		fmt.Fprintln(out, "")
		fmt.Fprintln(out, "Flags:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if showVersion {
		fmt.Fprintln(stdout, fsversion.String(version, commit, date))
		return 0
	}

	keyFile = strings.TrimSpace(keyFile)

	rest := fs.Args()
	if len(rest) != 1 {
		fmt.Fprintln(stderr, "missing required <connection-string> argument")
		fs.Usage()
		return 2
	}
	connectionString := strings.TrimSpace(rest[0])
	if resume && keyFile == "" {
		fmt.Fprintln(stderr, "--resume requires --key-file")
		fs.Usage()
		return 2
	}

	logger := log.New(stderr, "", log.LstdFlags)

	kp, err := loadOrCreateKeyPair(keyFile, overwriteKeyFile)
	if err != nil {
		fmt.Fprintln(stderr, err)
		if cmdutil.IsUsage(err) {
			return 2
		}
		return 1
	}

	opts := []bridge.JoinOption{
		bridge.WithJoinKeyPair(kp),
	}
	if bridgeURL != "" {
		opts = append(opts, bridge.WithJoinBridgeURL(bridgeURL))
	}
	if pingInterval > 0 {
		opts = append(opts, bridge.WithJoinPingInterval(pingInterval))
	}
	if connectTimeout > 0 {
		opts = append(opts, bridge.WithJoinConnectTimeout(connectTimeout))
	}
	if maxReconnects > 0 {
		opts = append(opts, bridge.WithJoinMaxReconnectAttempts(maxReconnects))
	}
	if noReconnect {
		opts = append(opts, bridge.WithJoinReconnect(false))
	}
	if resume {
		opts = append(opts, bridge.WithJoinResume(true))
	}
	if metricsListen != "" {
		reg := prom.NewRegistry()
		obs := prom.NewSessionObserver(reg)
		opts = append(opts, bridge.WithJoinObserver(obs))
		go serveMetrics(metricsListen, reg, logger)
	}

	b, berr := bridge.Join(connectionString, opts...)
	if berr != nil {
		fmt.Fprintln(stderr, berr)
		return 1
	}
	defer b.Close()

	pub := b.GetPublicKey()
	out := ready{
		Version:   version,
		Commit:    commit,
		Date:      date,
		BridgeID:  b.BridgeID(),
		PublicKey: hex.EncodeToString(pub[:]),
	}
	if err := cmdutil.WriteJSON(stdout, out, pretty); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	wireEvents(b, logger, stdout)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	doneCh := make(chan struct{})
	go readStdinAndSend(b, stdin, logger, doneCh)

	select {
	case <-sigCh:
	case <-doneCh:
	}
	return 0
}

// loadOrCreateKeyPair loads a persisted key from keyFile, or generates and
// persists a new one if it doesn't exist. With overwrite set, it skips the
// load and regenerates unconditionally; RefuseOverwrite still guards the
// write against a file that appeared between the existence check and here.
func loadOrCreateKeyPair(keyFile string, overwrite bool) (bridgecrypto.KeyPair, error) {
	if keyFile == "" {
		return bridgecrypto.GenerateKeyPair()
	}
	if !overwrite {
		if raw, err := os.ReadFile(keyFile); err == nil {
			return bridgecrypto.KeyPairFromPrivate(raw)
		} else if !os.IsNotExist(err) {
			return bridgecrypto.KeyPair{}, err
		}
	}
	if err := cmdutil.RefuseOverwrite(keyFile, overwrite); err != nil {
		return bridgecrypto.KeyPair{}, err
	}
	kp, err := bridgecrypto.GenerateKeyPair()
	if err != nil {
		return bridgecrypto.KeyPair{}, err
	}
	priv := kp.PrivateKeyBytes()
	if err := securefile.WriteFileAtomic(keyFile, priv[:], 0o600); err != nil {
		return bridgecrypto.KeyPair{}, err
	}
	return kp, nil
}

func wireEvents(b *bridge.Bridge, logger *log.Logger, stdout io.Writer) {
	b.OnConnect(func(reconnection bool) {
		logger.Printf("connected (reconnection=%v)", reconnection)
	})
	b.OnSecureChannelEstablished(func() {
		logger.Printf("secure channel established")
	})
	b.OnSecureMessage(func(method string, params []byte) {
		_ = cmdutil.WriteJSON(stdout, inboundMessage{Method: method, Params: params}, false)
	})
	b.OnDisconnect(func(code int, reason string, wasConnected, wasIntentionalClose, willReconnect bool) {
		logger.Printf("disconnected code=%d reason=%q willReconnect=%v", code, reason, willReconnect)
	})
	b.OnFailedToConnect(func(err error) {
		logger.Printf("failed to connect: %v", err)
	})
	b.OnError(func(err *bridgeerr.Error) {
		logger.Printf("error: %v", err)
	})
}

func readStdinAndSend(b *bridge.Bridge, stdin io.Reader, logger *log.Logger, done chan<- struct{}) {
	defer close(done)
	scanner := bufio.NewScanner(stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var msg inboundMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			logger.Printf("skipping malformed input line: %v", err)
			continue
		}
		var params any
		if len(msg.Params) > 0 {
			if err := json.Unmarshal(msg.Params, &params); err != nil {
				logger.Printf("skipping malformed params: %v", err)
				continue
			}
		}
		if !b.SendMessage(msg.Method, params) {
			logger.Printf("send failed for method %q", msg.Method)
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", prom.Handler(reg))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Printf("metrics server stopped: %v", err)
	}
}
