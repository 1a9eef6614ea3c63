package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	httpapi "posprint/internal/interfaces/http"
)

func printCmd(g *globals) *cobra.Command {
	var (
		address string
		fiscal  bool
		file    string
	)

	cmd := &cobra.Command{
		Use:   "print",
		Short: "Напечатать чек из JSON файла (формат тела POST /v1/receipts/req/print)",
		RunE: func(c *cobra.Command, _ []string) error {
			dto, err := readPrintRequest(file, c.InOrStdin())
			if err != nil {
				return err
			}
			if address != "" {
				dto.SourceIP = address
			}
			if c.Flags().Changed("fiscal") {
				dto.Fiscal = fiscal
			}

			a, err := g.load()
			if err != nil {
				return err
			}
			outcome, err := a.Printing.Print(c.Context(), dto.ToRequest())
			if err != nil {
				return err
			}
			if err := printJSON(c.OutOrStdout(), outcome); err != nil {
				return err
			}
			return outcome.Err()
		},
	}

	cmd.Flags().StringVarP(&address, "address", "a", "", "адрес кассы (переопределяет sourceIp из файла)")
	cmd.Flags().BoolVar(&fiscal, "fiscal", false, "фискальный чек")
	cmd.Flags().StringVarP(&file, "file", "f", "-", "JSON файл запроса, '-' для stdin")
	return cmd
}

func readPrintRequest(path string, stdin io.Reader) (httpapi.PrintReceiptRequestDTO, error) {
	var dto httpapi.PrintReceiptRequestDTO

	r := stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return dto, err
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(&dto); err != nil {
		return dto, fmt.Errorf("некорректный JSON запроса: %w", err)
	}
	return dto, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
