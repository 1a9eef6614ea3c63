package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"posprint/internal/domain/models"
)

func devicesCmd(g *globals) *cobra.Command {
	c := &cobra.Command{
		Use:   "devices",
		Short: "Управление реестром принтеров",
	}

	c.AddCommand(devicesListCmd(g), devicesAddCmd(g), devicesRemoveCmd(g))
	return c
}

func devicesListCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Список зарегистрированных принтеров",
		RunE: func(c *cobra.Command, _ []string) error {
			a, err := g.load()
			if err != nil {
				return err
			}
			devices, err := a.Connection.LoadDevices()
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Fprintln(c.OutOrStdout(), "(реестр пуст)")
				return nil
			}

			tw := tabwriter.NewWriter(c.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ADDRESS\tCONNECTION\tTARGET\tMODEL\tSERIAL")
			for _, d := range devices {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.Address, d.ConnectionType, target(d), d.Model, d.SerialNumber)
			}
			return tw.Flush()
		},
	}
}

func target(d *models.DeviceProfile) string {
	if d.ConnectionType == models.ConnectionCOM {
		return fmt.Sprintf("%s@%d", d.ComName, d.BaudRate)
	}
	return fmt.Sprintf("%s:%d", d.DialHost(), d.TCPPort)
}

func devicesAddCmd(g *globals) *cobra.Command {
	var p models.DeviceProfile

	cmd := &cobra.Command{
		Use:   "add ADDRESS",
		Short: "Добавить или обновить привязку адреса кассы к принтеру",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			a, err := g.load()
			if err != nil {
				return err
			}
			p.Address = args[0]
			if err := a.Connection.SaveDevice(&p); err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "%s -> %s\n", p.Address, target(&p))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&p.ConnectionType, "connection", models.ConnectionTCP, "тип подключения: tcp или com")
	f.StringVar(&p.Host, "host", "", "хост принтера (по умолчанию адрес кассы)")
	f.IntVar(&p.TCPPort, "port", 0, "TCP порт принтера")
	f.StringVar(&p.ComName, "com", "", "COM порт, например COM9 или /dev/ttyUSB0")
	f.IntVar(&p.BaudRate, "baud", 115200, "скорость COM порта")
	f.StringVar(&p.Model, "model", "", "модель принтера")
	f.StringVar(&p.SerialNumber, "serial", "", "заводской номер")
	return cmd
}

func devicesRemoveCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "remove ADDRESS",
		Short: "Удалить привязку адреса кассы",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			a, err := g.load()
			if err != nil {
				return err
			}
			return a.Connection.DeleteDevice(args[0])
		},
	}
}
