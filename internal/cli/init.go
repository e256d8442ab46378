package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new Terrapin project",
	Long:  `Creates a new Terrapin project with default configuration files.`,
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", stateDir, err)
	}

	mainPkl := "main.pkl"
	if _, err := os.Stat(mainPkl); os.IsNotExist(err) {
		content := `// Terrapin configuration
// See: https://github.com/terrapin-dev/terrapin

amends "terrapin:Config"

resources {
  // Add your resources here
}

outputs {
  // Add your outputs here
}
`
		if err := os.WriteFile(mainPkl, []byte(content), 0644); err != nil {
			return fmt.Errorf("failed to create %s: %w", mainPkl, err)
		}
		fmt.Printf("Created %s\n", mainPkl)
	}

	statePath := filepath.Join(stateDir, "state.pkl")
	if _, err := os.Stat(statePath); os.IsNotExist(err) {
		content := `// Terrapin state file. Do not edit by hand.
amends "terrapin:State"

version = 1
serial = 0
lineage = ""

resources {}

outputs {}
`
		if err := os.WriteFile(statePath, []byte(content), 0644); err != nil {
			return fmt.Errorf("failed to create state file: %w", err)
		}
		fmt.Printf("Created %s\n", statePath)
	}

	settingsPath := "terrapin.yaml"
	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		content := `# Terrapin project settings.
logLevel: info
parallelism: 10
# backend:
#   type: s3
#   config:
#     bucket: my-state-bucket
#     key: terrapin/state.pkl
#     region: us-east-1
#     dynamodb_table: terrapin-locks
`
		if err := os.WriteFile(settingsPath, []byte(content), 0644); err != nil {
			return fmt.Errorf("failed to create %s: %w", settingsPath, err)
		}
		fmt.Printf("Created %s\n", settingsPath)
	}

	fmt.Println("\nTerrapin initialized successfully!")
	fmt.Println("Next steps:")
	fmt.Println("  1. Edit main.pkl to define your infrastructure")
	fmt.Println("  2. Run 'terrapin plan' to see what will be created")
	fmt.Println("  3. Run 'terrapin apply' to create your infrastructure")

	return nil
}
