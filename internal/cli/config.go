package cli

import (
	"fmt"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pass-with-high-score/devtool-web-sub002/internal/apikeys"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage provider API keys",
	Long: `Manage the API keys used by the key-gated sources.

Keys are stored in ~/.subscan/config.yaml. Environment variables
(VT_API_KEY, VIRUSTOTAL_API_KEY, SHODAN_API_KEY) take precedence.

Subcommands:
  show              Show configured keys (masked)
  init              Create the key file template
  set               Store a key for a provider
  test              Validate keys against the providers
  import-subfinder  Copy keys from subfinder's provider-config.yaml`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show configured keys",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the key file template",
	RunE:  runConfigInit,
}

var configSetCmd = &cobra.Command{
	Use:   "set <virustotal|shodan> <key>",
	Short: "Store a key for a provider",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var configTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Validate configured keys",
	RunE:  runConfigTest,
}

var configImportCmd = &cobra.Command{
	Use:   "import-subfinder [provider-config.yaml]",
	Short: "Import virustotal and shodan keys from subfinder",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigImport,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configTestCmd)
	configCmd.AddCommand(configImportCmd)
}

// loadKeys reads the key file; withEnv also applies environment overrides
func loadKeys(withEnv bool) (*apikeys.Manager, error) {
	mgr := apikeys.NewManager()
	load := mgr.LoadFile
	if withEnv {
		load = mgr.Load
	}
	if err := load(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return mgr, nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	bold("\n[+] subscan Configuration")

	mgr, err := loadKeys(true)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Print(mgr.ShowConfig())
	color.New(color.FgHiBlack).Printf("\nEdit configuration: %s\n", mgr.Path())
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	bold("\n[+] Initializing Configuration")

	path := apikeys.GetDefaultConfigPath()
	created, err := apikeys.CreateDefaultConfig(path)
	if err != nil {
		return fmt.Errorf("failed to create config: %w", err)
	}
	if !created {
		color.New(color.FgYellow).Printf("    Config file already exists: %s\n", path)
		return nil
	}

	color.New(color.FgGreen).Printf("    ✓ Created: %s\n", path)
	gray := color.New(color.FgHiBlack)
	gray.Println("\nNext steps:")
	gray.Println("  1. Add keys with 'subscan config set <provider> <key>' or edit the file")
	gray.Println("  2. Run 'subscan config test' to validate them")
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	mgr, err := loadKeys(false)
	if err != nil {
		return err
	}
	if err := mgr.Set(args[0], args[1]); err != nil {
		return err
	}
	if err := mgr.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	color.New(color.FgGreen).Printf("[+] Saved %s key to %s\n", args[0], mgr.Path())
	return nil
}

func runConfigTest(cmd *cobra.Command, args []string) error {
	bold("\n[+] Testing API Keys")

	mgr, err := loadKeys(true)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)
	gray := color.New(color.FgHiBlack)

	client := &http.Client{Timeout: 15 * time.Second}
	fmt.Println()

	valid, invalid := 0, 0
	for _, provider := range []string{"virustotal", "shodan"} {
		key := mgr.First(provider)
		if key == "" {
			gray.Printf("    ○ %-12s not configured (source will be skipped)\n", provider)
			continue
		}

		result := apikeys.TestKey(client, provider, key)
		if result.Valid {
			valid++
			green.Printf("    ✓ %-12s %s", provider, result.Key)
		} else {
			invalid++
			red.Printf("    ✗ %-12s %s", provider, result.Key)
		}
		gray.Printf(" (%dms)", result.Latency.Milliseconds())
		if result.Error != "" {
			yellow.Printf(" - %s", result.Error)
		}
		fmt.Println()
	}

	fmt.Println()
	switch {
	case valid+invalid == 0:
		yellow.Println("[!] No API keys configured")
	case invalid == 0:
		green.Printf("[+] All %d keys validated successfully!\n", valid)
	default:
		yellow.Printf("[!] %d valid, %d invalid keys\n", valid, invalid)
	}
	return nil
}

func runConfigImport(cmd *cobra.Command, args []string) error {
	path := apikeys.GetSubfinderConfigPath()
	if len(args) == 1 {
		path = args[0]
	}

	mgr, err := loadKeys(false)
	if err != nil {
		return err
	}

	n := mgr.ImportFromSubfinder(path)
	if n == 0 {
		color.New(color.FgYellow).Printf("[!] No new keys found in %s\n", path)
		return nil
	}
	if mgr.GetConfig().SubfinderProviderConfig == "" {
		mgr.GetConfig().SubfinderProviderConfig = path
	}
	if err := mgr.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	color.New(color.FgGreen).Printf("[+] Imported %d keys from %s\n", n, path)
	return nil
}
