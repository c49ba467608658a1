package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dsh-project/dsh/internal/audit"
	"github.com/dsh-project/dsh/internal/config"
	"github.com/dsh-project/dsh/internal/rsh"
)

func (a *App) auditCommand() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the execution audit log",
	}
	cmd.PersistentFlags().StringVar(&path, "file", "", "audit log (default: audit.path from the config)")

	logPath := func(cmd *cobra.Command) (string, error) {
		if path != "" {
			return config.ExpandHome(path), nil
		}
		cfg, err := a.loadConfig(cmd)
		if err != nil {
			return "", err
		}
		if cfg.Audit.Path == "" {
			return "", errors.New("no audit log configured; set audit.path or pass --file")
		}
		return cfg.Audit.Path, nil
	}

	verify := &cobra.Command{
		Use:   "verify",
		Short: "Check the hash chain of the audit log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := logPath(cmd)
			if err != nil {
				return &exitError{status: rsh.StatusClient, err: err}
			}
			if err := audit.Verify(p); err != nil {
				return &exitError{status: rsh.StatusExecFailed, err: fmt.Errorf("audit verification failed: %w", err)}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "audit log integrity verified")
			return nil
		},
	}

	var n int
	show := &cobra.Command{
		Use:     "show",
		Aliases: []string{"tail"},
		Short:   "Print the most recent audit entries",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := logPath(cmd)
			if err != nil {
				return &exitError{status: rsh.StatusClient, err: err}
			}
			entries, err := audit.Tail(p, n)
			if err != nil {
				return &exitError{status: rsh.StatusExecFailed, err: err}
			}
			w := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(w, "no audit entries")
				return nil
			}
			for _, e := range entries {
				data, _ := json.MarshalIndent(e, "", "  ")
				fmt.Fprintf(w, "%s\n", data)
			}
			return nil
		},
	}
	show.Flags().IntVarP(&n, "lines", "n", 20, "number of entries")

	cmd.AddCommand(verify, show)
	return cmd
}
