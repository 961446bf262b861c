package main

import (
	"fmt"
	"syscall"

	"github.com/helixdb/helixdb/internal/instances"
	"github.com/spf13/cobra"
)

var instancesCmd = &cobra.Command{
	Use:   "instances",
	Short: "Inspect and manage locally running helix dev instances",
}

var instancesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every instance recorded in ~/.helix/instances.json",
	RunE:  runInstancesList,
}

var instancesStopCmd = &cobra.Command{
	Use:   "stop <instance-id>",
	Short: "Send SIGTERM to a running instance and deregister it",
	Args:  cobra.ExactArgs(1),
	RunE:  runInstancesStop,
}

func init() {
	instancesCmd.AddCommand(instancesListCmd)
	instancesCmd.AddCommand(instancesStopCmd)
	rootCmd.AddCommand(instancesCmd)
}

func openRegistry() (*instances.Registry, error) {
	path, err := instances.DefaultPath()
	if err != nil {
		return nil, err
	}
	return instances.Open(path)
}

func runInstancesList(cmd *cobra.Command, args []string) error {
	reg, err := openRegistry()
	if err != nil {
		return err
	}
	list, err := reg.List()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("no instances registered")
		return nil
	}
	for _, inst := range list {
		status := "stopped"
		if inst.Running {
			status = "running"
		}
		fmt.Printf("%s\t%s\tport=%d\tpid=%d\t%s\t%s\n",
			inst.ID, status, inst.Port, inst.PID, inst.StartedAt.Format("2006-01-02T15:04:05"), inst.ProjectDir)
	}
	return nil
}

func runInstancesStop(cmd *cobra.Command, args []string) error {
	id := args[0]
	reg, err := openRegistry()
	if err != nil {
		return err
	}
	list, err := reg.List()
	if err != nil {
		return err
	}
	var found *instances.Instance
	for i := range list {
		if list[i].ID == id {
			found = &list[i]
			break
		}
	}
	if found == nil {
		return fmt.Errorf("no such instance: %s", id)
	}
	if found.Running {
		if err := syscall.Kill(found.PID, syscall.SIGTERM); err != nil {
			return fmt.Errorf("signal instance %s (pid %d): %w", id, found.PID, err)
		}
	}
	return reg.Deregister(id)
}
