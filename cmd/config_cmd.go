package cmd

import (
	"fmt"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and manage configuration",
	}
	cmd.AddCommand(configShowCmd())
	cmd.AddCommand(configPathCmd())
	cmd.AddCommand(configSetKeyCmd())
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration (secrets redacted)",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			if cfg.Provider.APIKey != "" {
				cfg.Provider.APIKey = "[REDACTED]"
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				fatalf("%v", err)
			}
			fmt.Print(string(data))
		},
	}
}

func configPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	}
}

func configSetKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-key",
		Short: "Store the provider API key in the OS keyring",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()

			fmt.Print("API key: ")
			key, err := term.ReadPassword(int(syscall.Stdin))
			fmt.Println()
			if err != nil {
				fatalf("reading key: %v", err)
			}
			if len(key) == 0 {
				fatalf("empty key")
			}
			if err := cfg.StoreAPIKey(string(key)); err != nil {
				fatalf("storing key: %v", err)
			}
			fmt.Printf("Key stored in keyring for provider %q.\n", cfg.Provider.Name)
		},
	}
}
