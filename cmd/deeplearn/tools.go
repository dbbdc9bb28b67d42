package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/deeplearn-app/deeplearn/internal/catalog"
	"github.com/deeplearn-app/deeplearn/internal/model"
	"github.com/deeplearn-app/deeplearn/internal/outbox"
)

func flushCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Try once to deliver the pending telemetry event",
		RunE:  runFlush,
	}
	addStateFlags(cmd)
	addDeliveryFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "catalog <pre|post|ethics>",
		Short:     "Validate and print a catalog",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(model.TagPre), string(model.TagPost), string(model.TagEthics)},
		RunE:      runCatalog,
	}
	f := cmd.Flags()
	f.StringP("file", "f", "", "Catalog file (default: built-in catalog)")
	f.String("format", "yaml", "Output format (yaml, json)")
	addLogFlags(cmd)
	return cmd
}

func runFlush(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	state, err := openState(ctx, v)
	if err != nil {
		return err
	}
	defer state.Close()

	timeout := v.GetDuration("delivery-timeout")
	ob := outbox.New(outbox.NewHTTPSender(v.GetString("collector-url"), timeout), state, outbox.WithTimeout(timeout))

	delivered, err := ob.Flush(ctx)
	if err != nil {
		return err
	}
	if delivered {
		fmt.Fprintln(cmd.OutOrStdout(), "pending event delivered")
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "nothing pending")
	}
	return nil
}

type catalogSummary struct {
	Name   string         `json:"name" yaml:"name"`
	Groups []groupSummary `json:"groups" yaml:"groups"`
}

type groupSummary struct {
	Title       string       `json:"title" yaml:"title"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Items       []model.Item `json:"items" yaml:"items"`
	Synthetic   int          `json:"synthetic" yaml:"synthetic"`
}

func runCatalog(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	tag, err := model.ParseSessionTag(args[0])
	if err != nil {
		return err
	}
	c, err := catalog.Resolve(string(tag), v.GetString("file"))
	if err != nil {
		return err
	}

	sum := catalogSummary{Name: c.Name}
	for _, g := range c.Groups {
		gs := groupSummary{Title: g.Title, Description: g.Description, Items: g.Items}
		for _, it := range g.Items {
			if it.Label == model.LabelSynthetic {
				gs.Synthetic++
			}
		}
		sum.Groups = append(sum.Groups, gs)
	}

	out := cmd.OutOrStdout()
	switch strings.ToLower(v.GetString("format")) {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	case "yaml", "":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(sum)
	default:
		return fmt.Errorf("unknown format %q (yaml, json)", v.GetString("format"))
	}
}
