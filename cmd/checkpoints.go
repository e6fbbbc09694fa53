package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/wisq/autocrew/internal/store"
)

// retention selects checkpoints to delete; a zero field disables that limit.
type retention struct {
	KeepLast      int
	OlderThanDays int
	Force         bool
}

var (
	// checkpointDataDir overrides the configured data directory.
	checkpointDataDir string
	cleanPolicy       retention
)

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "Manage contact checkpoints",
	Long: `Manage the checkpoints the server restores contacts from.
Each contact has one checkpoint holding its scenario and latest solution.`,
}

var listCheckpointsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all available checkpoints",
	Long:  `Display every checkpoint with its contact, solution, settle state and size on disk.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listCheckpoints(cmd.OutOrStdout(), checkpointDir())
	},
}

var cleanCheckpointsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old checkpoints",
	Long: `Delete checkpoints by age or keep only the most recently solved contacts.
Deleting a checkpoint also deletes the contact's trace.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cleanCheckpoints(cmd.OutOrStdout(), cmd.InOrStdin(), checkpointDir(), cleanPolicy)
	},
}

func init() {
	rootCmd.AddCommand(checkpointsCmd)
	checkpointsCmd.AddCommand(listCheckpointsCmd, cleanCheckpointsCmd)

	cleanCheckpointsCmd.Flags().IntVar(&cleanPolicy.KeepLast, "keep-last", 0, "Keep only the N most recent checkpoints (0 = keep all)")
	cleanCheckpointsCmd.Flags().IntVar(&cleanPolicy.OlderThanDays, "older-than", 0, "Delete checkpoints older than N days (0 = no age limit)")
	cleanCheckpointsCmd.Flags().BoolVarP(&cleanPolicy.Force, "force", "f", false, "Skip confirmation prompt")
}

func checkpointDir() string {
	if checkpointDataDir != "" {
		return checkpointDataDir
	}
	if cfg != nil {
		return cfg.DataDir
	}
	return "./data"
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

func openStore(dir string) (*store.FSStore, []store.CheckpointInfo, error) {
	checkpointStore, err := store.NewFSStore(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create checkpoint store: %w", err)
	}
	infos, err := checkpointStore.ListCheckpoints()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	return checkpointStore, infos, nil
}

func listCheckpoints(w io.Writer, dir string) error {
	_, infos, err := openStore(dir)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintln(w, "No checkpoints found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CONTACT ID\tNAME\tSOLVED AT\tOBS\tCOURSE\tSPEED\tRESIDUAL\tSETTLED\tSIZE")
	for _, info := range infos {
		size := "unknown"
		if n, err := getDirSize(filepath.Join(dir, "contacts", info.ContactID)); err == nil {
			size = formatBytes(n)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.1f\t%.2f\t%.3g\t%v\t%s\n",
			shortID(info.ContactID),
			info.Name,
			info.Timestamp.Format(time.DateTime),
			info.Observations,
			info.Course,
			info.Speed,
			info.Value,
			info.Settled,
			size,
		)
	}
	tw.Flush()

	fmt.Fprintf(w, "\nTotal checkpoints: %d\n", len(infos))
	return nil
}

// cleanCheckpoints deletes what policy selects, asking on in first unless
// policy.Force is set.
func cleanCheckpoints(w io.Writer, in io.Reader, dir string, policy retention) error {
	if policy.KeepLast == 0 && policy.OlderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	checkpointStore, infos, err := openStore(dir)
	if err != nil {
		return err
	}
	toDelete := selectCheckpointsForDeletion(infos, policy.KeepLast, policy.OlderThanDays)
	if len(toDelete) == 0 {
		fmt.Fprintln(w, "No checkpoints match deletion criteria.")
		return nil
	}

	fmt.Fprintf(w, "Found %d checkpoint(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Fprintf(w, "  - %s %q (%d observations, solved %s)\n",
			shortID(info.ContactID), info.Name, info.Observations, info.Timestamp.Format(time.DateTime))
	}

	if !policy.Force {
		fmt.Fprint(w, "\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Fscanln(in, &response)
		if response != "y" && response != "Y" {
			fmt.Fprintln(w, "Aborted.")
			return nil
		}
	}

	deleted, failed := 0, 0
	for _, info := range toDelete {
		if err := checkpointStore.DeleteCheckpoint(info.ContactID); err != nil {
			slog.Error("Failed to delete checkpoint", "contactID", info.ContactID, "error", err)
			failed++
			continue
		}
		slog.Info("Deleted checkpoint", "contactID", info.ContactID)
		deleted++
	}

	fmt.Fprintf(w, "\nDeleted %d checkpoint(s), %d failed.\n", deleted, failed)
	return nil
}

// selectCheckpointsForDeletion applies the retention policy. A checkpoint
// is selected if it is older than olderThanDays or falls outside the
// keepLast most recent ones; either limit is off when zero.
func selectCheckpointsForDeletion(infos []store.CheckpointInfo, keepLast int, olderThanDays int) []store.CheckpointInfo {
	var toDelete []store.CheckpointInfo
	selected := make(map[string]bool)

	if olderThanDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -olderThanDays)
		for _, info := range infos {
			if info.Timestamp.Before(cutoff) {
				toDelete = append(toDelete, info)
				selected[info.ContactID] = true
			}
		}
	}

	if keepLast > 0 && len(infos) > keepLast {
		sorted := slices.Clone(infos)
		slices.SortFunc(sorted, func(a, b store.CheckpointInfo) int {
			return a.Timestamp.Compare(b.Timestamp)
		})
		for _, info := range sorted[:len(sorted)-keepLast] {
			if !selected[info.ContactID] {
				toDelete = append(toDelete, info)
				selected[info.ContactID] = true
			}
		}
	}

	return toDelete
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
