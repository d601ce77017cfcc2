package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/upb/inventory-retrieval/internal/filter"
	"github.com/upb/inventory-retrieval/models"
	"github.com/upb/inventory-retrieval/services/documents"
	"github.com/upb/inventory-retrieval/services/inventory"
	"github.com/upb/inventory-retrieval/services/retrieval"
)

// printJSON writes v indented to the command's stdout
func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseFilterFlag decodes a JSON object flag into a filter.Spec
func parseFilterFlag(raw string) (filter.Spec, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var m map[string]interface{}
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("invalid --filter JSON: %w", err)
	}
	return filter.FromMap(m)
}

// readInput reads a file argument, or stdin for "-"
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func newSimilarityCmd(s *session) *cobra.Command {
	var (
		k         int
		rawFilter string
		native    bool
		asContext bool
	)
	cmd := &cobra.Command{
		Use:   "similarity <query>",
		Short: "Pure vector search over the document collection",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := parseFilterFlag(rawFilter)
			if err != nil {
				return err
			}
			be, err := s.backend(cmd.Context())
			if err != nil {
				return err
			}
			req := retrieval.SimilarityRequest{
				Query:  strings.Join(args, " "),
				Filter: spec,
				K:      k,
				Native: native,
			}
			if asContext {
				text, err := be.retrieval.Context(cmd.Context(), req)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
				return err
			}
			resp, err := be.retrieval.SimilaritySearch(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 0, "number of results (0 uses the configured default)")
	cmd.Flags().StringVar(&rawFilter, "filter", "", `metadata filter as JSON, e.g. '{"make":"Toyota","year":{"min":2020}}'`)
	cmd.Flags().BoolVar(&native, "native", false, "route through the generic vector store client")
	cmd.Flags().BoolVar(&asContext, "context", false, "print the formatted knowledge base block instead of JSON")
	return cmd
}

func newHybridCmd(s *session) *cobra.Command {
	var (
		k         int
		rawFilter string
		alpha     float64
		entities  bool
	)
	cmd := &cobra.Command{
		Use:   "hybrid <query>",
		Short: "Lexical and vector fused search",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := parseFilterFlag(rawFilter)
			if err != nil {
				return err
			}
			be, err := s.backend(cmd.Context())
			if err != nil {
				return err
			}
			req := retrieval.HybridRequest{
				Query:       strings.Join(args, " "),
				Filter:      spec,
				K:           k,
				UseEntities: entities,
			}
			if cmd.Flags().Changed("alpha") {
				req.Alpha = &alpha
			}
			resp, err := be.retrieval.HybridSearch(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 0, "number of results (0 uses the configured default)")
	cmd.Flags().StringVar(&rawFilter, "filter", "", "metadata filter as JSON")
	cmd.Flags().Float64Var(&alpha, "alpha", 0, "lexical weight in [0, 1] (unset uses the configured default)")
	cmd.Flags().BoolVar(&entities, "entities", false, "expand the lexical query with extracted entities")
	return cmd
}

func newInventoryCmd(s *session) *cobra.Command {
	var (
		q         inventory.Query
		year      int
		minPrice  float64
		maxPrice  float64
		limit     int
		rawFilter string
	)
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "Budgeted structured inventory search",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			extra, err := parseFilterFlag(rawFilter)
			if err != nil {
				return err
			}
			be, err := s.backend(cmd.Context())
			if err != nil {
				return err
			}
			q.Extra = extra
			if cmd.Flags().Changed("year") {
				q.Year = &year
			}
			if cmd.Flags().Changed("min-price") {
				q.MinPrice = &minPrice
			}
			if cmd.Flags().Changed("max-price") {
				q.MaxPrice = &maxPrice
			}
			if cmd.Flags().Changed("limit") {
				q.ContextLimit = &limit
			}
			resp, err := be.inventory.Search(cmd.Context(), q)
			if err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}
	f := cmd.Flags()
	f.StringVar(&q.VIN, "vin", "", "exact VIN")
	f.StringVar(&q.Make, "make", "", "make substring")
	f.StringVar(&q.Model, "model", "", "model substring")
	f.StringVar(&q.Trim, "trim", "", "trim substring")
	f.StringVar(&q.VehicleType, "type", "", "vehicle type substring")
	f.StringVar(&q.ExteriorColor, "color", "", "exterior color substring")
	f.StringVar(&q.FuelType, "fuel", "", "fuel type substring")
	f.IntVar(&year, "year", 0, "model year")
	f.Float64Var(&minPrice, "min-price", 0, "minimum selling price")
	f.Float64Var(&maxPrice, "max-price", 0, "maximum selling price")
	f.StringSliceVar(&q.Fields, "fields", nil, "columns to return (default all)")
	f.IntVar(&limit, "limit", 0, "token budget (unset uses the configured default)")
	f.StringVar(&rawFilter, "filter", "", "extra column filter as JSON")
	return cmd
}

func newLoadCmd(s *session) *cobra.Command {
	load := &cobra.Command{
		Use:   "load",
		Short: "Load documents or vehicles from a JSON file",
	}

	load.AddCommand(&cobra.Command{
		Use:   "documents <file|->",
		Short: `Embed and store a JSON array of {"content", "metadata"} objects`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			var inputs []documents.Input
			if err := json.Unmarshal(data, &inputs); err != nil {
				return fmt.Errorf("invalid documents file: %w", err)
			}
			be, err := s.backend(cmd.Context())
			if err != nil {
				return err
			}
			result, err := be.documents.AddDocuments(cmd.Context(), inputs)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	})

	load.AddCommand(&cobra.Command{
		Use:   "inventory <file|->",
		Short: "Insert or replace a JSON array of vehicle records keyed by vin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			var records []*models.InventoryRecord
			if err := json.Unmarshal(data, &records); err != nil {
				return fmt.Errorf("invalid inventory file: %w", err)
			}
			be, err := s.backend(cmd.Context())
			if err != nil {
				return err
			}
			if err := be.inventory.InsertVehicles(cmd.Context(), records); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "stored %d vehicles\n", len(records))
			return err
		},
	})

	return load
}

func newSchemaCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create the vector extension, collection tables and inventory table if missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			be, err := s.backend(cmd.Context())
			if err != nil {
				return err
			}
			if err := be.initSchema(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "schema ready")
			return err
		},
	}
}
