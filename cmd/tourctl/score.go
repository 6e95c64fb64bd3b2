package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tourplan/internal/opt"
)

func newScoreCmd() *cobra.Command {
	var matrixPath, tourArg string
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Print the cyclic cost of a tour over a JSON cost matrix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if matrixPath == "" || tourArg == "" {
				return errors.New("--matrix and --tour are required")
			}
			raw, err := os.ReadFile(matrixPath)
			if err != nil {
				return err
			}
			var m opt.Matrix
			if err := json.Unmarshal(raw, &m); err != nil {
				return fmt.Errorf("parse matrix: %w", err)
			}
			t, err := parseTour(tourArg)
			if err != nil {
				return err
			}
			n, err := opt.ValidateMatrix(m)
			if err != nil {
				return err
			}
			if len(t) == n+1 && t[0] == t[n] {
				t = t[:n]
			}
			if err := opt.ValidatePermutation(t, n); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%g\n", opt.Value(m, t))
			return nil
		},
	}
	cmd.Flags().StringVar(&matrixPath, "matrix", "", "JSON file holding an N x N cost matrix")
	cmd.Flags().StringVar(&tourArg, "tour", "", "comma separated location indices, e.g. 0,2,1")
	return cmd
}

func parseTour(s string) (opt.Tour, error) {
	parts := strings.Split(s, ",")
	t := make(opt.Tour, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("tour: %w", err)
		}
		t = append(t, v)
	}
	return t, nil
}
