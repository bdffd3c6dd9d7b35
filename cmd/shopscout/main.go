package main

import (
	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "shopscout"}

	root.AddCommand(serveCMD(), researchAgentCMD(), ebayAgentCMD(), amazonAgentCMD(), migrateCMD())
	_ = root.Execute()
}
