package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/claimcheck/internal/model"
	"github.com/ppiankov/claimcheck/internal/rules"
	"github.com/ppiankov/claimcheck/internal/util"
)

var showYAML bool

// rulesCmd represents the rules command
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and update tenant rule documents",
	Long: `Inspect and update the technical and medical rule documents of a tenant.

Documents live under the rules directory as {tenant}/{kind}_rules.json.
A tenant without its own document uses the default tenant's, and without
that the built-in defaults.`,
}

var rulesShowCmd = &cobra.Command{
	Use:   "show <tenant> [technical|medical]",
	Short: "Show the effective rule documents of a tenant",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openRuleStore()
		if err != nil {
			return err
		}
		kinds, err := ruleKinds(args[1:])
		if err != nil {
			return err
		}

		for _, kind := range kinds {
			doc, err := store.Get(cmd.Context(), args[0], kind)
			if err != nil {
				return err
			}
			if err := printDocument(os.Stdout, doc, showYAML); err != nil {
				return err
			}
		}
		return nil
	},
}

var rulesUpdateCmd = &cobra.Command{
	Use:   "update <tenant> <technical|medical> <file|->",
	Short: "Validate and replace a tenant's rule document",
	Long: `Update parses and validates a rule document, then atomically replaces
the tenant's file. An invalid document leaves the current one in place.
Pass - to read the document from stdin.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openRuleStore()
		if err != nil {
			return err
		}
		kind, err := model.ParseRuleKind(args[1])
		if err != nil {
			return err
		}

		var raw []byte
		if args[2] == "-" {
			raw, err = io.ReadAll(os.Stdin)
		} else {
			raw, err = os.ReadFile(args[2])
		}
		if err != nil {
			return fmt.Errorf("read rules document: %w", err)
		}

		if err := store.Update(cmd.Context(), args[0], kind, raw); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "✓ Updated %s rules for %s\n", kind, args[0])
		return nil
	},
}

var rulesInvalidateCmd = &cobra.Command{
	Use:   "invalidate [tenant] [technical|medical]",
	Short: "Drop cached documents and re-read them",
	Long: `Invalidate drops the cached documents of a tenant (or a single kind) and
reloads them, reporting which file is now in effect. A corrupt document is
reported as a fallback to the next document in the chain.`,
	Args: cobra.RangeArgs(0, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openRuleStore()
		if err != nil {
			return err
		}

		tenant := store.DefaultTenant()
		if len(args) > 0 {
			tenant = args[0]
		}
		kinds, err := ruleKinds(args[min(len(args), 1):])
		if err != nil {
			return err
		}

		for _, kind := range kinds {
			doc, err := store.Reload(cmd.Context(), tenant, kind)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "✓ %s/%s reloaded (origin: %s, hash: %.12s)\n", tenant, kind, doc.Origin, doc.Hash)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesShowCmd)
	rulesCmd.AddCommand(rulesUpdateCmd)
	rulesCmd.AddCommand(rulesInvalidateCmd)

	rulesShowCmd.Flags().BoolVar(&showYAML, "yaml", false, "print documents as YAML instead of JSON")
}

func openRuleStore() (*rules.Store, error) {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return nil, err
	}
	return newRuleStore(cfg, os.Stderr), nil
}

// newRuleStore builds a rule store logging to w with the configured format
func newRuleStore(cfg *model.Config, w io.Writer) *rules.Store {
	logger := util.NewLogger(w, cfg.Output.Verbose, cfg.Output.JSONLog)
	return rules.NewStore(rules.NewFileSource(cfg.Rules.Dir), nil, cfg.Rules.DefaultTenant, time.Minute, logger)
}

// ruleKinds parses an optional kind argument; none means every kind
func ruleKinds(args []string) ([]model.RuleKind, error) {
	if len(args) == 0 {
		return []model.RuleKind{model.RuleKindTechnical, model.RuleKindMedical}, nil
	}
	kind, err := model.ParseRuleKind(args[0])
	if err != nil {
		return nil, err
	}
	return []model.RuleKind{kind}, nil
}

func printDocument(w io.Writer, doc *rules.Document, asYAML bool) error {
	fmt.Fprintf(w, "# %s/%s (origin: %s, hash: %.12s)\n", doc.Tenant, doc.Kind, doc.Origin, doc.Hash)

	var data []byte
	var err error
	if asYAML {
		data, err = yaml.Marshal(doc.Value())
	} else {
		data, err = doc.MarshalIndent()
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("render %s rules: %w", doc.Kind, err)
	}
	_, err = w.Write(data)
	return err
}
