package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haivivi/giztalk/go/pkg/cli"
	"github.com/haivivi/giztalk/go/pkg/store"
)

var applyFile string

// resourceDoc is one YAML document in an apply file.
type resourceDoc struct {
	Kind string         `yaml:"kind"`
	Spec map[string]any `yaml:"spec"`
}

var applyCmd = &cobra.Command{
	Use:   "apply -f <file>",
	Short: "Apply resource documents from YAML",
	Long: `Apply one or more resource documents from a YAML file.
Use '-' to read from stdin. Multi-document YAML (--- separated) is
supported.

Supported kinds:
  role, device, model_config

Examples:
  giztalk apply -f setup.yaml
  cat roles.yaml | giztalk apply -f -`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if applyFile == "" {
			return fmt.Errorf("flag -f is required")
		}

		var data []byte
		var err error
		if applyFile == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(applyFile)
		}
		if err != nil {
			return err
		}

		docs, err := parseDocuments(data)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return fmt.Errorf("no documents found in %s", applyFile)
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		for _, doc := range docs {
			name, err := applyDocument(cmd.Context(), st, doc)
			if err != nil {
				return fmt.Errorf("%s: %w", doc.Kind, err)
			}
			fmt.Printf("%s %s applied\n", doc.Kind, name)
		}
		return nil
	},
}

// parseDocuments splits multi-document YAML and decodes each document.
func parseDocuments(data []byte) ([]resourceDoc, error) {
	var docs []resourceDoc
	for _, chunk := range strings.Split(string(data), "\n---") {
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		var doc resourceDoc
		if err := cli.ParseRequest([]byte(chunk), "doc.yaml", &doc); err != nil {
			return nil, err
		}
		if doc.Kind == "" {
			return nil, fmt.Errorf("document without kind")
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// applyDocument decodes the spec into the store record for its kind and
// persists it. Spec keys follow the records' JSON field names.
func applyDocument(ctx context.Context, st *store.Store, doc resourceDoc) (string, error) {
	raw, err := json.Marshal(doc.Spec)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(doc.Kind) {
	case "role":
		var role store.Role
		if err := json.Unmarshal(raw, &role); err != nil {
			return "", err
		}
		if role.ID == "" {
			return "", fmt.Errorf("role without id")
		}
		return role.ID, st.Roles.Put(ctx, &role)
	case "device":
		var dev store.Device
		if err := json.Unmarshal(raw, &dev); err != nil {
			return "", err
		}
		if dev.ID == "" {
			return "", fmt.Errorf("device without id")
		}
		return dev.ID, st.Devices.Put(ctx, &dev)
	case "model_config":
		var cfg store.ModelConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return "", err
		}
		if cfg.ID == "" {
			return "", fmt.Errorf("model_config without id")
		}
		return cfg.ID, st.ModelConfigs.Put(ctx, &cfg)
	default:
		return "", fmt.Errorf("unknown kind %q", doc.Kind)
	}
}

func init() {
	applyCmd.Flags().StringVarP(&applyFile, "file", "f", "", "YAML file to apply (use '-' for stdin)")
	rootCmd.AddCommand(applyCmd)
}
