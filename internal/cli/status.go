package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"posprint/internal/domain/models"
)

func closeCmd(g *globals) *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "close",
		Short: "Закрыть незавершённые чеки на принтере кассы",
		RunE: func(c *cobra.Command, _ []string) error {
			a, err := g.load()
			if err != nil {
				return err
			}
			if err := a.Printing.CloseOpenReceipts(c.Context(), address); err != nil {
				return err
			}
			fmt.Fprintln(c.OutOrStdout(), "OK")
			return nil
		},
	}

	cmd.Flags().StringVarP(&address, "address", "a", "", "адрес кассы")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}

func statusCmd(g *globals) *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Показать коды состояния принтера кассы",
		RunE: func(c *cobra.Command, _ []string) error {
			a, err := g.load()
			if err != nil {
				return err
			}
			warnings, err := a.Connection.Status(c.Context(), address)
			if err != nil {
				return err
			}
			return printJSON(c.OutOrStdout(), models.NewPrintOutcome(warnings))
		},
	}

	cmd.Flags().StringVarP(&address, "address", "a", "", "адрес кассы")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}

func portsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "Список COM-портов системы",
		RunE: func(c *cobra.Command, _ []string) error {
			a, err := g.load()
			if err != nil {
				return err
			}
			list, err := a.Connection.GetSystemPorts()
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(c.OutOrStdout(), "(COM-порты не найдены)")
				return nil
			}
			for _, p := range list {
				fmt.Fprintln(c.OutOrStdout(), p)
			}
			return nil
		},
	}
}
