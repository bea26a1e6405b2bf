package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/inferloop/contentscore/internal/server"
)

type TokenOptions struct {
	Subject string
	Scopes  []string
	TTL     time.Duration
	Output  OutputOptions
}

// TokenResult is the issued API token
type TokenResult struct {
	Token     string    `json:"token"`
	Subject   string    `json:"subject"`
	Scopes    []string  `json:"scopes"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewTokenCmd(global *GlobalOptions) *cobra.Command {
	opts := &TokenOptions{}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the HTTP API",
		Long: `Sign a bearer token with server.auth.jwt_secret. Tokens with the read scope
may call every GET endpoint; batch runs and ad hoc scoring need write.`,
		Example: `  # Read-only token for a dashboard
  contentscore-cli token --subject dashboard

  # Token for a scheduler that triggers batch runs, valid for a week
  contentscore-cli token --subject scheduler --scopes read,write --ttl 168h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(cmd, global, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Subject, "subject", "", "Token subject (required)")
	cmd.Flags().StringSliceVar(&opts.Scopes, "scopes", []string{server.ScopeRead}, "Granted scopes (read, write)")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 0, "Token lifetime (default: server.auth.jwt_expiration)")
	opts.Output.addFlags(cmd)
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}

func runToken(cmd *cobra.Command, global *GlobalOptions, opts *TokenOptions) error {
	if err := opts.Output.validate(); err != nil {
		return err
	}
	if opts.TTL < 0 {
		return fmt.Errorf("ttl must be positive, got %s", opts.TTL)
	}

	cfg, err := global.LoadConfig()
	if err != nil {
		return err
	}
	auth := cfg.Server.Auth
	if opts.TTL > 0 {
		auth.JWTExpiration = opts.TTL
	}

	issuedAt := global.now()
	token, err := server.IssueToken(&auth, opts.Subject, opts.Scopes, issuedAt)
	if err != nil {
		return err
	}

	result := &TokenResult{
		Token:     token,
		Subject:   opts.Subject,
		Scopes:    opts.Scopes,
		ExpiresAt: issuedAt.Add(auth.TokenLifetime()),
	}
	return opts.Output.write(cmd, result, func(w io.Writer) { fmt.Fprintln(w, result.Token) })
}
