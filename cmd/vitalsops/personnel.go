package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"vitalsops/internal/api"
	"vitalsops/internal/telemetry"
)

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "List enrolled soldiers",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := setup("")
		if err != nil {
			return err
		}
		defer rt.Close()
		ctx := cmd.Context()
		if _, err := rt.requireSession(ctx); err != nil {
			return err
		}
		rows, err := rt.client.Soldiers(ctx)
		if err != nil {
			return err
		}
		renderRoster(cmd.OutOrStdout(), rows)
		return nil
	},
}

var (
	regID    string
	regName  string
	regRank  string
	regUnit  string
	regBlood string
	regMedic bool
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Link a LoRa node to a new soldier profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		if regID == "" || regName == "" {
			return fmt.Errorf("--id and --name are required")
		}
		rt, err := setup("")
		if err != nil {
			return err
		}
		defer rt.Close()
		ctx := cmd.Context()
		if _, err := rt.requireSession(ctx); err != nil {
			return err
		}
		p := telemetry.SoldierProfile{
			SoldierID:  regID,
			Name:       regName,
			Rank:       regRank,
			Unit:       regUnit,
			BloodGroup: strings.ToUpper(regBlood),
			Role:       telemetry.PersonnelSoldier,
		}
		if regMedic {
			p.Role = telemetry.PersonnelMedic
		}
		if err := rt.client.RegisterSoldier(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", api.Message(err, "Registration Failed"), err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Personnel linked: %s (%s)\n", p.SoldierID, p.Name)
		return nil
	},
}

var commandersCmd = &cobra.Command{
	Use:   "commanders",
	Short: "List commanders grouped by sector",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := setup("")
		if err != nil {
			return err
		}
		defer rt.Close()
		ctx := cmd.Context()
		if _, err := rt.requireSession(ctx); err != nil {
			return err
		}
		rows, err := rt.client.Commanders(ctx)
		if err != nil {
			return err
		}
		renderSectors(cmd.OutOrStdout(), telemetry.GroupSectors(rows))
		return nil
	},
}

var (
	ccName   string
	ccEmail  string
	ccRegion string
)

var createCommanderCmd = &cobra.Command{
	Use:   "create-commander",
	Short: "Provision a commander account",
	RunE: func(cmd *cobra.Command, args []string) error {
		if ccName == "" || ccEmail == "" {
			return fmt.Errorf("--name and --email are required")
		}
		rt, err := setup("")
		if err != nil {
			return err
		}
		defer rt.Close()
		ctx := cmd.Context()
		if _, err := rt.requireSession(ctx); err != nil {
			return err
		}
		password, err := readSecret(cmd.OutOrStdout(), "Initial password: ")
		if err != nil {
			return err
		}
		nc := api.NewCommander{Name: ccName, Email: ccEmail, Password: password, Region: ccRegion}
		if err := rt.client.CreateCommander(ctx, nc); err != nil {
			return fmt.Errorf("%s: %w", api.Message(err, "Registration Failed: Insufficient Clearance"), err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Commander provisioned: %s <%s>\n", nc.Name, nc.Email)
		return nil
	},
}

func renderRoster(w io.Writer, rows []telemetry.SoldierProfile) {
	t := table.New().Headers("UNIT", "NAME", "RANK", "DETACHMENT", "BLOOD", "ROLE")
	for _, p := range rows {
		t.Row(p.SoldierID, p.DisplayName(), p.Rank, p.Unit, p.BloodGroup, string(p.Role))
	}
	fmt.Fprintln(w, t.String())
	fmt.Fprintf(w, "%d enrolled\n", len(rows))
}

func renderSectors(w io.Writer, sectors []telemetry.Sector) {
	t := table.New().Headers("SECTOR", "NAME", "EMAIL")
	for _, s := range sectors {
		for _, c := range s.Commanders {
			t.Row(s.Name, c.Name, c.Email)
		}
	}
	fmt.Fprintln(w, t.String())
	fmt.Fprintf(w, "%d sectors\n", len(sectors))
}

func init() {
	registerCmd.Flags().StringVar(&regID, "id", "", "LoRa hardware id (soldierId)")
	registerCmd.Flags().StringVar(&regName, "name", "", "Full name")
	registerCmd.Flags().StringVar(&regRank, "rank", telemetry.Ranks[0], "Rank ("+strings.Join(telemetry.Ranks, ", ")+")")
	registerCmd.Flags().StringVar(&regUnit, "unit", "", "Unit")
	registerCmd.Flags().StringVar(&regBlood, "blood", "", "Blood group")
	registerCmd.Flags().BoolVar(&regMedic, "medic", false, "Register as a combat medic")

	createCommanderCmd.Flags().StringVar(&ccName, "name", "", "Commander name")
	createCommanderCmd.Flags().StringVar(&ccEmail, "email", "", "Commander email")
	createCommanderCmd.Flags().StringVar(&ccRegion, "region", "", "Assigned sector")
}
