package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	nubrick "github.com/nubrick/nubrick-go"
	"github.com/nubrick/nubrick-go/internal/config"
	"github.com/nubrick/nubrick-go/internal/experiment"
	"github.com/nubrick/nubrick-go/pkg/models"
)

// buildResolveCmd creates the "resolve" command: run the resolution engine
// offline over a catalog file with a simulated user.
func buildResolveCmd() *cobra.Command {
	var (
		catalogPath string
		kinds       []string
		rnd         float64
		props       []string
		at          string
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a catalog file offline and print the winning variant",
		Example: `  # Which variant would a user with rnd 0.42 on the pro plan see?
  nubrickctl resolve --catalog catalog.json --kind EMBED --rnd 0.42 --prop plan=pro`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(catalogPath, kinds, rnd, props, at)
		},
	}

	cmd.Flags().StringVarP(&catalogPath, "catalog", "f", "", "Path to a catalog JSON file (required)")
	cmd.Flags().StringSliceVarP(&kinds, "kind", "k", []string{"EMBED"}, "Requested experiment kinds")
	cmd.Flags().Float64Var(&rnd, "rnd", 0, "Normalized user random value in [0,1)")
	cmd.Flags().StringArrayVarP(&props, "prop", "p", nil, "User property as name=value or name=value:TYPE")
	cmd.Flags().StringVar(&at, "at", "", "Resolution time, RFC3339 (default now)")
	cmd.MarkFlagRequired("catalog")

	return cmd
}

func runResolve(catalogPath string, kindNames []string, rnd float64, props []string, at string) error {
	raw, err := os.ReadFile(catalogPath)
	if err != nil {
		return err
	}
	var catalog models.ExperimentConfigs
	if err := json.Unmarshal(raw, &catalog); err != nil {
		return fmt.Errorf("parse catalog: %w", err)
	}

	now := time.Now()
	if at != "" {
		if now, err = time.Parse(time.RFC3339, at); err != nil {
			return fmt.Errorf("parse --at: %w", err)
		}
	}

	kinds := make([]models.ExperimentKind, 0, len(kindNames))
	for _, k := range kindNames {
		kinds = append(kinds, models.ExperimentKind(strings.ToUpper(k)))
	}
	properties, err := parseProps(props)
	if err != nil {
		return err
	}

	// Offline resolution has no delivery history, so frequency caps pass.
	cfg := experiment.Resolve(&catalog, kinds, now, experiment.Predicates{
		Properties:            func(*int) []models.UserProperty { return properties },
		IsNotInFrequency:      func(string, *models.ExperimentFrequency) bool { return true },
		MatchedEventFrequency: func([]models.UserEventFrequencyCondition) bool { return true },
	})
	if cfg == nil {
		fmt.Println("no eligible config")
		return nil
	}
	variant := experiment.SelectVariant(cfg, rnd)
	if variant == nil {
		fmt.Printf("config %s eligible but no variant selectable\n", cfg.ID)
		return nil
	}

	out := struct {
		ExperimentID string                    `json:"experimentId"`
		Kind         models.ExperimentKind     `json:"kind"`
		Variant      *models.ExperimentVariant `json:"variant"`
	}{cfg.ID, cfg.Kind, variant}
	return printJSON(out)
}

func parseProps(props []string) ([]models.UserProperty, error) {
	out := make([]models.UserProperty, 0, len(props))
	for _, p := range props {
		name, rest, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("property %q is not name=value", p)
		}
		value, typ := rest, models.UserPropertyTypeString
		if v, t, ok := strings.Cut(rest, ":"); ok {
			value, typ = v, models.UserPropertyType(strings.ToUpper(t))
		}
		out = append(out, models.UserProperty{Name: name, Value: value, Type: typ})
	}
	return out, nil
}

// buildEmbeddingCmd creates the "embedding" command: fetch live EMBED
// content exactly as an embedding host would.
func buildEmbeddingCmd() *cobra.Command {
	var (
		configPath  string
		componentID string
	)

	cmd := &cobra.Command{
		Use:   "embedding <experiment-id>",
		Short: "Fetch live embedding content for an experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), configPath, func(ctx context.Context, client *nubrick.Client) error {
				content, err := client.Embedding(ctx, args[0], componentID)
				if err != nil {
					return err
				}
				return printJSON(content)
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "nubrick.yaml", "Path to YAML configuration file")
	cmd.Flags().StringVar(&componentID, "component", "", "Fetch this component directly, skipping resolution")
	return cmd
}

// buildRemoteConfigCmd creates the "remote-config" command.
func buildRemoteConfigCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "remote-config <experiment-id>",
		Short: "Resolve a CONFIG experiment and print its key/value variant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), configPath, func(ctx context.Context, client *nubrick.Client) error {
				variant, err := client.RemoteConfig(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(variant)
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "nubrick.yaml", "Path to YAML configuration file")
	return cmd
}

// buildDispatchCmd creates the "dispatch" command: fire a trigger event
// end to end and report what opened.
func buildDispatchCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "dispatch <event-name>",
		Short: "Fire a trigger event and report delivered content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), configPath, func(ctx context.Context, client *nubrick.Client) error {
				if err := client.Dispatch(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("dispatched", args[0])
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "nubrick.yaml", "Path to YAML configuration file")
	return cmd
}

// buildSchemaCmd creates the "schema" command.
func buildSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the configuration file JSON schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := config.JSONSchema()
			if err != nil {
				return err
			}
			fmt.Println(string(schema))
			return nil
		},
	}
}

func withClient(ctx context.Context, configPath string, fn func(context.Context, *nubrick.Client) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	client, err := nubrick.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close(ctx)
	return fn(ctx, client)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
