package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/versolabs/verso/internal/catalog"
	"github.com/versolabs/verso/internal/config"
	"github.com/versolabs/verso/internal/llm"
	"github.com/versolabs/verso/internal/llm/gemini"
	"github.com/versolabs/verso/internal/llm/ovhai"
	"github.com/versolabs/verso/internal/log"
	"github.com/versolabs/verso/internal/selftest"
)

var selftestPreset string

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Validate a preset against its live provider",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger := log.New(log.Config{Level: cfg.Log.SlogLevel(), JSON: cfg.Log.JSON})

		clients := make(map[string]llm.Client)
		if key := cfg.Providers.Gemini.APIKey; key != "" {
			client, err := gemini.New(cmd.Context(), gemini.Config{APIKey: key, Logger: logger})
			if err != nil {
				return err
			}
			clients[catalog.ProviderGemini] = client
		}
		if key := cfg.Providers.OVHAI.APIKey; key != "" {
			client, err := ovhai.New(ovhai.Config{BaseURL: cfg.Providers.OVHAI.BaseURL, APIKey: key, Logger: logger})
			if err != nil {
				return err
			}
			clients[catalog.ProviderOVHAI] = client
		}

		agent, err := selftest.New(selftest.Config{
			Clients:  clients,
			Catalog:  catalog.New(),
			Defaults: cfg.LLM,
			Presets:  cfg.PresetMap(),
			Logger:   logger,
		})
		if err != nil {
			return err
		}

		report, err := agent.Validate(cmd.Context(), selftestPreset)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
		if !report.Healthy {
			return fmt.Errorf("preset %q is unhealthy", selftestPreset)
		}
		return nil
	},
}

func init() {
	selftestCmd.Flags().StringVarP(&selftestPreset, "preset", "p", "", "preset to validate (empty validates the base configuration)")
	rootCmd.AddCommand(selftestCmd)
}
