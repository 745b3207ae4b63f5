package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ehr/folio/internal/domain/destination"
	"github.com/ehr/folio/internal/domain/documents"
	"github.com/ehr/folio/internal/platform/auth"
)

func codesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "codes",
		Short: "Print the document type code catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CODE\tLABEL")
			for _, tc := range documents.Catalog() {
				fmt.Fprintf(w, "%s\t%s\n", tc.Code, tc.Label)
			}
			return w.Flush()
		},
	}
}

func resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve CODE...",
		Short: "Look up the destination directory of type codes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			codes := make([]string, 0, len(args))
			for _, arg := range args {
				code, ok := documents.NormalizeCode(arg)
				if !ok {
					return fmt.Errorf("%q: %w", arg, documents.ErrInvalidTypeCode)
				}
				codes = append(codes, code)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			resolver := destination.NewResolver(newHISClient(cfg, cfg.HISAPIBase, logger), logger)
			res := resolver.ResolveAll(ctx, codes)
			for _, code := range codes {
				if dir, ok := res.Dirs[code]; ok {
					fmt.Fprintf(os.Stdout, "%s\t%s\n", code, dir)
				}
			}
			for _, code := range res.Failed() {
				fmt.Fprintf(os.Stderr, "%s\tunresolved: %v (fallback %s)\n", code, res.Errors[code], cfg.FallbackDestDir)
			}
			if len(res.Errors) > 0 {
				return fmt.Errorf("%d code(s) unresolved", len(res.Errors))
			}
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		subject  string
		username string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an operator token for a scanning workstation",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.AuthSigningKey == "" {
				return errors.New("AUTH_SIGNING_KEY is not set")
			}
			if subject == "" && username == "" {
				return errors.New("--subject or --username is required")
			}

			now := time.Now()
			claims := auth.Claims{
				RegisteredClaims: jwt.RegisteredClaims{
					ID:        uuid.NewString(),
					Subject:   subject,
					IssuedAt:  jwt.NewNumericDate(now),
					ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
				},
				PreferredUsername: username,
			}
			token, err := auth.IssueToken([]byte(cfg.AuthSigningKey), claims)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject")
	cmd.Flags().StringVar(&username, "username", "", "operator username recorded on filed records")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}
