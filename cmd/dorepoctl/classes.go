package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/danmuck/dorepo/internal/config"
	"github.com/danmuck/dorepo/internal/protocol/schema"
	"github.com/spf13/cobra"
)

var classesJSON bool

func init() {
	cmd := newClassesCmd()
	cmd.Flags().BoolVar(&classesJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(cmd)
}

func newClassesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classes",
		Short: "Print the class table declared in the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			reg, err := config.BuildSchema(cfg.Classes)
			if err != nil {
				return err
			}
			if classesJSON {
				return printClassesJSON(cmd.OutOrStdout(), reg)
			}
			return printClasses(cmd.OutOrStdout(), reg)
		},
	}
}

type fieldRow struct {
	Class    string   `json:"class"`
	Number   uint16   `json:"number"`
	Field    string   `json:"field"`
	Tag      uint16   `json:"tag"`
	Kind     string   `json:"kind"`
	Params   []string `json:"params"`
	Keywords []string `json:"keywords,omitempty"`
	Default  bool     `json:"has_default"`
}

func fieldRows(reg *schema.Registry) []fieldRow {
	var rows []fieldRow
	for _, c := range reg.Classes() {
		if len(c.Fields) == 0 {
			rows = append(rows, fieldRow{Class: c.Name, Number: c.Number})
			continue
		}
		for _, f := range c.Fields {
			params := make([]string, len(f.Params))
			for i, p := range f.Params {
				params[i] = p.String()
			}
			rows = append(rows, fieldRow{
				Class:    c.Name,
				Number:   c.Number,
				Field:    f.Name,
				Tag:      f.Tag,
				Kind:     kindName(f.Kind),
				Params:   params,
				Keywords: keywordNames(f),
				Default:  f.HasDefault(),
			})
		}
	}
	return rows
}

func printClasses(w io.Writer, reg *schema.Registry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CLASS\tNUM\tFIELD\tTAG\tKIND\tPARAMS\tKEYWORDS")
	for _, r := range fieldRows(reg) {
		if r.Field == "" {
			fmt.Fprintf(tw, "%s\t%d\t-\t-\t-\t-\t-\n", r.Class, r.Number)
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%s\t%s\t%s\n",
			r.Class, r.Number, r.Field, r.Tag, r.Kind,
			strings.Join(r.Params, ","), strings.Join(r.Keywords, ","))
	}
	return tw.Flush()
}

func printClassesJSON(w io.Writer, reg *schema.Registry) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(fieldRows(reg))
}

func kindName(k schema.Kind) string {
	switch k {
	case schema.Atomic:
		return "atomic"
	case schema.Molecular:
		return "molecular"
	default:
		return "parameter"
	}
}

func keywordNames(f *schema.Field) []string {
	var out []string
	for _, kw := range []struct {
		k    schema.Keyword
		name string
	}{
		{schema.Required, "required"},
		{schema.Broadcast, "broadcast"},
		{schema.OwnRecv, "ownrecv"},
		{schema.RAM, "ram"},
		{schema.DB, "db"},
		{schema.AIRecv, "airecv"},
		{schema.ClSend, "clsend"},
		{schema.ClRecv, "clrecv"},
	} {
		if f.Is(kw.k) {
			out = append(out, kw.name)
		}
	}
	return out
}
