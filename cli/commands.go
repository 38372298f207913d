package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/tnqbao/gau-site-director/entity"
	"github.com/tnqbao/gau-site-director/infra/fleet"
)

var (
	operationsCmd = &cobra.Command{
		Use:   "operations",
		Short: "Manage pending site operations",
	}
	operationsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List every operation that has not finished",
		Args:  cobra.NoArgs,
		RunE:  runOperationsList,
	}
	operationsShowCmd = &cobra.Command{
		Use:   "show [operation id]",
		Short: "Show an operation and its actions",
		Args:  cobra.ExactArgs(1),
		RunE:  runOperationsShow,
	}
	operationsClearCmd = &cobra.Command{
		Use:   "clear [operation id]",
		Short: "Discard an operation so its site accepts new ones",
		Args:  cobra.ExactArgs(1),
		RunE:  runOperationsClear,
	}

	fleetCmd = &cobra.Command{
		Use:   "fleet",
		Short: "Inspect the appserver and balancer pools",
	}
	fleetPingCmd = &cobra.Command{
		Use:   "ping [pool]",
		Short: "Ping every host of a pool",
		Args:  cobra.ExactArgs(1),
		RunE:  runFleetPing,
	}

	recoverCmd = &cobra.Command{
		Use:   "recover",
		Short: "Fail actions left running by a dead worker and requeue stale operations",
		Args:  cobra.NoArgs,
		RunE:  runRecover,
	}
)

func parseOperationID(arg string) (uint, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid operation id %q", arg)
	}
	return uint(id), nil
}

func operationState(op *entity.Operation) string {
	switch {
	case op.HasFailed():
		return "failed"
	case op.HasStarted():
		return "running"
	}
	return "queued"
}

func runOperationsList(cmd *cobra.Command, args []string) error {
	ops, err := director.repo.OperationRepo.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list operations: %w", err)
	}
	writeOperations(cmd.OutOrStdout(), ops)
	return nil
}

func writeOperations(out io.Writer, ops []entity.Operation) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSITE\tTYPE\tSTATE\tCREATED")
	for i := range ops {
		op := &ops[i]
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\n", op.ID, op.SiteID, op.Type, operationState(op), op.CreatedTime.Format(time.RFC3339))
	}
	w.Flush()
}

func runOperationsShow(cmd *cobra.Command, args []string) error {
	id, err := parseOperationID(args[0])
	if err != nil {
		return err
	}
	op, err := director.repo.OperationRepo.FindByID(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("failed to load operation %d: %w", id, err)
	}
	writeOperation(cmd.OutOrStdout(), op)
	return nil
}

func writeOperation(out io.Writer, op *entity.Operation) {
	fmt.Fprintf(out, "Operation %d (%s) on site %d: %s\n", op.ID, op.Type, op.SiteID, operationState(op))
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SLUG\tRESULT\tCOMMAND")
	for _, a := range op.Actions {
		result := "pending"
		switch {
		case a.Succeeded():
			result = "ok"
		case a.Failed():
			result = "failed"
		case a.HasStarted():
			result = "running"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", a.Slug, result, a.EquivalentCommand)
	}
	w.Flush()

	for _, a := range op.Actions {
		if a.Failed() && a.Message != "" {
			fmt.Fprintf(out, "\n%s:\n%s\n", a.Slug, a.Message)
		}
	}
}

func runOperationsClear(cmd *cobra.Command, args []string) error {
	id, err := parseOperationID(args[0])
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	op, err := director.repo.OperationRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load operation %d: %w", id, err)
	}
	// the operator acts as an administrator
	if err := director.svc.Scheduler.Clear(ctx, op, &entity.User{IsSuperuser: true}); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cleared operation %d of site %d\n", op.ID, op.SiteID)
	return nil
}

func runFleetPing(cmd *cobra.Command, args []string) error {
	pool, ok := director.infra.Fleet.Pool(args[0])
	if !ok {
		return fmt.Errorf("unknown pool %q, expected %s or %s", args[0], fleet.PoolAppservers, fleet.PoolBalancers)
	}
	reachable := pool.PingAll(cmd.Context(), director.cfg.EnvConfig.Fleet.PingTimeout)
	writePing(cmd.OutOrStdout(), pool.Addrs(), reachable)
	return nil
}

func writePing(out io.Writer, addrs []string, reachable []int) {
	up := make(map[int]bool, len(reachable))
	for _, i := range reachable {
		up[i] = true
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tHOST\tSTATUS")
	for i, addr := range addrs {
		status := "down"
		if up[i] {
			status = "up"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", i, addr, status)
	}
	w.Flush()
	fmt.Fprintf(out, "%d/%d reachable\n", len(reachable), len(addrs))
}

func runRecover(cmd *cobra.Command, args []string) error {
	failed, err := director.svc.Runner.RecoverInterrupted(cmd.Context())
	if err != nil {
		return fmt.Errorf("recovery failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d interrupted actions marked failed\n", failed)
	return nil
}
