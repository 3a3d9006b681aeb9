package cli

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/path402/internal/control"
	"github.com/vietddude/path402/internal/verify/ownership"
)

var (
	verifyHandle  string
	verifyAddress string
)

var verifyDomainCmd = &cobra.Command{
	Use:   "verify-domain <domain>",
	Short: "Check a domain ownership claim over DNS, HTTPS and on-chain proof",
	Args:  cobra.ExactArgs(1),
	Run:   runVerifyDomain,
}

func init() {
	verifyDomainCmd.Flags().StringVar(&verifyHandle, "handle", "", "issuer handle the domain should name")
	verifyDomainCmd.Flags().StringVar(&verifyAddress, "address", "", "settlement address the domain should name")
	rootCmd.AddCommand(verifyDomainCmd)
}

func runVerifyDomain(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// The cache only helps a long-running process.
	ownCfg := cfg.Ownership
	ownCfg.CacheTTL = 0
	verifier, err := control.NewOwnershipVerifier(ctx, ownCfg, control.NewProofVerifier(cfg.Proof))
	if err != nil {
		slog.Error("Failed to initialize verifier", "error", err)
		os.Exit(1)
	}

	res := verifier.Verify(ctx, ownership.Claim{
		Domain:  args[0],
		Handle:  verifyHandle,
		Address: verifyAddress,
	})

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(res)

	if !res.OK {
		os.Exit(1)
	}
}
