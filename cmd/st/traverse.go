package main

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/atomantic/SparseTree-sub004/internal/graph"
	"github.com/atomantic/SparseTree-sub004/internal/types"
	"github.com/atomantic/SparseTree-sub004/internal/ui"
)

var ancestorsCmd = &cobra.Command{
	Use:   "ancestors PERSON",
	Short: "List ancestors breadth-first with depths",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTraversal(cmd, args[0], graph.Ancestors)
	},
}

var descendantsCmd = &cobra.Command{
	Use:   "descendants PERSON",
	Short: "List descendants breadth-first with depths",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTraversal(cmd, args[0], graph.Descendants)
	},
}

var pathCmd = &cobra.Command{
	Use:   "path PERSON_A PERSON_B",
	Short: "Find a path between two persons through a common ancestor",
	Args:  cobra.ExactArgs(2),
	RunE:  runPath,
}

func init() {
	for _, c := range []*cobra.Command{ancestorsCmd, descendantsCmd} {
		c.Flags().Int("max", 0, "Maximum depth (0 = unbounded)")
		c.Flags().Bool("tsv", false, "Emit tab-separated values")
		rootCmd.AddCommand(c)
	}
	pathCmd.Flags().String("policy", "shortest", "Common-ancestor policy: shortest|longest|random")
	pathCmd.Flags().Bool("tsv", false, "Emit tab-separated values")
	rootCmd.AddCommand(pathCmd)
}

type traversalFunc func(ctx context.Context, src graph.EdgeSource, start string, maxDepth int) ([]graph.Visit, error)

func runTraversal(cmd *cobra.Command, ref string, walk traversalFunc) error {
	maxDepth, _ := cmd.Flags().GetInt("max")
	tsv, _ := cmd.Flags().GetBool("tsv")

	person, err := resolvePerson(rootCtx, ref)
	if err != nil {
		return err
	}
	visits, err := walk(rootCtx, app.Store, person.ID, maxDepth)
	if err != nil {
		return err
	}

	switch {
	case jsonOutput:
		outputJSON(visits)
	case tsv:
		nameOf := nameResolver(rootCtx)
		for _, v := range visits {
			tsvRow(v.ID, nameOf(v.ID), strconv.Itoa(v.Depth))
		}
	default:
		nameOf := nameResolver(rootCtx)
		for _, v := range visits {
			indent := strings.Repeat("  ", v.Depth)
			fmt.Printf("%s%s %s\n", indent, nameOf(v.ID),
				ui.RenderMuted(fmt.Sprintf("(depth %d)", v.Depth)))
		}
	}
	return nil
}

func runPath(cmd *cobra.Command, args []string) error {
	policyStr, _ := cmd.Flags().GetString("policy")
	tsv, _ := cmd.Flags().GetBool("tsv")
	policy := types.PathPolicy(policyStr)

	a, err := resolvePerson(rootCtx, args[0])
	if err != nil {
		return err
	}
	b, err := resolvePerson(rootCtx, args[1])
	if err != nil {
		return err
	}

	var rng *rand.Rand
	if policy == types.PathRandom {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	result, err := graph.Path(rootCtx, app.Store, a.ID, b.ID, policy, rng)
	if err != nil {
		return err
	}

	switch {
	case jsonOutput:
		outputJSON(result)
	case tsv:
		nameOf := nameResolver(rootCtx)
		for _, id := range result.Nodes {
			tsvRow(id, nameOf(id))
		}
	default:
		nameOf := nameResolver(rootCtx)
		for _, id := range result.Nodes {
			marker := "  "
			if id == result.CommonAncestor {
				marker = ui.RenderAccent("▲ ")
			}
			fmt.Printf("%s%s %s\n", marker, nameOf(id), ui.RenderMuted(id))
		}
		fmt.Println(ui.RenderMuted(fmt.Sprintf(
			"%d edges via common ancestor %s (up %d, down %d)",
			result.Length, nameOf(result.CommonAncestor), result.DepthA, result.DepthB)))
	}
	return nil
}
