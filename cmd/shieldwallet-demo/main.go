// shieldwallet-demo is a minimal host application wiring pkg/wallet
// together over a local private key and a JSON-RPC endpoint. It exists to
// show how a real host supplies the capabilities pkg/wallet.New requires;
// it is not itself part of the core (spec.md §6: "no CLI surface is part
// of the core").
package main

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zdoge/shieldwallet/internal/coinselect"
	"github.com/zdoge/shieldwallet/internal/logging"
	"github.com/zdoge/shieldwallet/internal/orchestrator"
	"github.com/zdoge/shieldwallet/internal/storekv"
	"github.com/zdoge/shieldwallet/pkg/capability"
	"github.com/zdoge/shieldwallet/pkg/types"
	"github.com/zdoge/shieldwallet/pkg/wallet"
)

var log = logging.New("shieldwallet-demo")

// Config holds the demo's command-line parameters.
type Config struct {
	RPCAddr    string
	PrivateKey string
	Pool       string
	Token      string
	Decimals   int
	Relayer    string
	DataDir    string
	Amount     uint64
}

func main() {
	cfg := parseFlags()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutting down")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() *Config {
	cfg := &Config{}
	flag.StringVar(&cfg.RPCAddr, "rpc", "http://127.0.0.1:8545", "JSON-RPC endpoint exposing the shield pool indexer methods")
	flag.StringVar(&cfg.PrivateKey, "private-key", "", "hex-encoded external-wallet key material (demo only; a real host never reads this from a flag)")
	flag.StringVar(&cfg.Pool, "pool", "", "shield pool contract address, hex")
	flag.StringVar(&cfg.Token, "token", "DOGE", "token symbol this wallet instance tracks")
	flag.IntVar(&cfg.Decimals, "decimals", 18, "token decimals")
	flag.StringVar(&cfg.Relayer, "relayer", "", "relayer address for fee-paying operations, hex")
	flag.StringVar(&cfg.DataDir, "data-dir", "./data", "directory for the encrypted note-store file")
	flag.Uint64Var(&cfg.Amount, "shield-amount", 0, "if set, prepare a shield of this amount and exit instead of idling")
	flag.Parse()
	return cfg
}

// demoSigner is a stand-in for a production host's wallet-extension or
// hardware-signer bridge (spec.md §6 leaves the signing transport to the
// host entirely). It derives a deterministic signature from a raw key so
// the same key always re-derives the same identity, which is all the
// identity layer requires of a real Signer.
type demoSigner struct {
	key []byte
}

func (s demoSigner) Sign(_ context.Context, message string) ([]byte, error) {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(message))
	return mac.Sum(nil), nil
}

// httpJSONRPC implements capability.Rpc over a plain JSON-RPC 2.0 HTTP
// endpoint using only the standard library.
type httpJSONRPC struct {
	endpoint string
	client   *http.Client
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *httpJSONRPC) Call(ctx context.Context, method string, params ...any) ([]byte, error) {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("shieldwallet-demo: encode rpc request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("shieldwallet-demo: rpc call %s: %w", method, err)
	}
	defer resp.Body.Close()

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("shieldwallet-demo: decode rpc response for %s: %w", method, err)
	}
	if decoded.Error != nil {
		return nil, fmt.Errorf("shieldwallet-demo: rpc error from %s: %s", method, decoded.Error.Message)
	}
	return decoded.Result, nil
}

// systemClock implements capability.Clock over wall-clock time.
type systemClock struct{}

func (systemClock) NowMs() int64 { return time.Now().UnixMilli() }

// systemRng implements capability.Rng over the OS CSPRNG. A host that
// already has an audited RNG source (an HSM, a hardware wallet's own RNG)
// should inject that instead.
type systemRng struct{}

func (systemRng) Fill(b []byte) error {
	_, err := rand.Read(b)
	return err
}

func run(ctx context.Context, cfg *Config) error {
	if cfg.PrivateKey == "" {
		return fmt.Errorf("shieldwallet-demo: -private-key is required")
	}
	if cfg.Pool == "" {
		return fmt.Errorf("shieldwallet-demo: -pool is required")
	}

	keyBytes, err := hex.DecodeString(trimHexPrefix(cfg.PrivateKey))
	if err != nil {
		return fmt.Errorf("shieldwallet-demo: decode private key: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("shieldwallet-demo: create data dir: %w", err)
	}

	rpc := &httpJSONRPC{endpoint: cfg.RPCAddr, client: &http.Client{Timeout: 15 * time.Second}}

	poolBytes, err := hex.DecodeString(trimHexPrefix(cfg.Pool))
	if err != nil {
		return fmt.Errorf("shieldwallet-demo: decode pool address: %w", err)
	}
	relayerBytes, err := hex.DecodeString(trimHexPrefix(cfg.Relayer))
	if err != nil {
		return fmt.Errorf("shieldwallet-demo: decode relayer address: %w", err)
	}

	// A demo external address derived from the key material itself; a
	// production host supplies the EOA address its signing transport
	// already knows, rather than deriving one here.
	addrDigest := sha256.Sum256(keyBytes)

	w, err := wallet.New(ctx, wallet.Capabilities{
		Signer: demoSigner{key: keyBytes},
		Rpc:    rpc,
		Prover: noOpProver{},
		Kv:     storekv.NewFile(cfg.DataDir + "/" + cfg.Token + ".wallet"),
		Clock:  systemClock{},
		Rng:    systemRng{},
	}, wallet.Config{
		Pool:            types.AddressFromBytes(poolBytes),
		TokenSymbol:     cfg.Token,
		TokenDecimals:   uint8(cfg.Decimals),
		ExternalAddress: types.AddressFromBytes(addrDigest[:]),
		Relayer:         types.AddressFromBytes(relayerBytes),
		FeeModel:        coinselect.Config{MinFee: 1000, FeeBps: 30},
		StorageKey:      "notes",
		CursorKey:       "cursor",
	})
	if err != nil {
		return fmt.Errorf("shieldwallet-demo: wallet init: %w", err)
	}

	log.Info().Str("shieldedAddress", w.Identity.ShieldedAddress.String()).Uint64("balance", w.Balance()).Msg("wallet ready")

	if cfg.Amount > 0 {
		op, err := w.PrepareShield(ctx, cfg.Amount, orchestrator.Artifacts{})
		if err != nil {
			return fmt.Errorf("shieldwallet-demo: prepare shield: %w", err)
		}
		log.Info().Str("opID", op.ID).Strs("calldata", op.Result.Calldata[:]).Msg("shield proof ready; submit via the host's own transaction pipeline")
		return nil
	}

	<-ctx.Done()
	return nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// noOpProver is a placeholder capability.Prover for demonstration wiring
// only. A real host replaces this with a binding to its own prover
// process (spec.md §1 Non-goals: the prover implementation is out of
// scope for this module).
type noOpProver struct{}

func (noOpProver) Prove(_ context.Context, _ map[string]any, _, _ []byte) (capability.Groth16Proof, error) {
	return capability.Groth16Proof{}, fmt.Errorf("shieldwallet-demo: no prover wired; pass a real pkg/capability.Prover implementation")
}
