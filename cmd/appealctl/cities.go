package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ticketfight/appeal-service/internal/domain"
	"github.com/ticketfight/appeal-service/internal/service/eligibility"
)

func citiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cities",
		Short: "Print the city eligibility registry from its YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			file, _ := cmd.Flags().GetString("file")
			if file == "" {
				file = cfg.Cities.File
			}
			all, _ := cmd.Flags().GetBool("all")

			gate := eligibility.NewGate(eligibility.FileSource{Path: file}, 0, nil)
			if err := gate.Load(cmd.Context()); err != nil {
				return err
			}
			return printCities(cmd, gate.List(cmd.Context(), all))
		},
	}
	cmd.Flags().Bool("all", false, "Include blocked cities")
	cmd.Flags().String("file", "", "Registry file (defaults to cities.file from config)")
	return cmd
}

func printCities(cmd *cobra.Command, cities []domain.City) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATE\tADMISSIBLE\tNOTE")
	for _, c := range cities {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", c.ID, c.Name, c.State, c.Admissible(), c.Reason)
	}
	return w.Flush()
}
