package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/wisq/autocrew/internal/server"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [contact-id]",
	Short: "Query server status or specific contact",
	Long: `Queries the server for contact information.
If no contact-id is provided, lists all contacts.
If contact-id is provided, shows the contact's latest solution.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	if len(args) == 0 {
		var contacts []server.Contact
		if err := getJSON(client, serverURL+"/api/v1/contacts", &contacts); err != nil {
			return err
		}
		printContacts(os.Stdout, contacts)
		return nil
	}

	var c server.Contact
	if err := getJSON(client, fmt.Sprintf("%s/api/v1/contacts/%s/status", serverURL, args[0]), &c); err != nil {
		return err
	}
	printContact(os.Stdout, c)
	return nil
}

func getJSON(client *http.Client, url string, out any) error {
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("not found: %s", url)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func printContacts(w io.Writer, contacts []server.Contact) {
	if len(contacts) == 0 {
		fmt.Fprintln(w, "No contacts found")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CONTACT ID\tNAME\tSTATE\tOBS\tCOURSE\tSPEED")
	for _, c := range contacts {
		course, speed := "-", "-"
		if c.Solution != nil {
			course = fmt.Sprintf("%.1f", c.Solution.Course)
			speed = fmt.Sprintf("%.2f", c.Solution.Speed)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			c.ID, c.Scenario.Name, c.State, len(c.Scenario.Observations), course, speed)
	}
	tw.Flush()
	fmt.Fprintf(w, "\nTotal contacts: %d\n", len(contacts))
}

func printContact(w io.Writer, c server.Contact) {
	fmt.Fprintf(w, "Contact: %s\n", c.ID)
	fmt.Fprintf(w, "Name: %s\n", c.Scenario.Name)
	fmt.Fprintf(w, "State: %s\n", c.State)
	fmt.Fprintf(w, "Observations: %d\n", len(c.Scenario.Observations))
	fmt.Fprintf(w, "Solves: %d\n", c.Solves)
	if c.LastSolve != nil {
		fmt.Fprintf(w, "Last solve: %s\n", c.LastSolve.Format(time.RFC3339))
	}

	if sol := c.Solution; sol != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Solution:")
		fmt.Fprintf(w, "  Start: (%.3f, %.3f) nmi\n", sol.X, sol.Y)
		fmt.Fprintf(w, "  Course: %.1f°\n", sol.Course)
		fmt.Fprintf(w, "  Speed: %.2f kn\n", sol.Speed)
		fmt.Fprintf(w, "  Residual: %.3g (from %d observations)\n", sol.Value, sol.Observations)
	}

	if c.Error != "" {
		fmt.Fprintf(w, "\nError: %s\n", c.Error)
	}
}
