package main

import (
	"github.com/spf13/cobra"

	"github.com/shopscout/shopscout/config"
	"github.com/shopscout/shopscout/internal/agents"
	"github.com/shopscout/shopscout/internal/marketplace"
	"github.com/shopscout/shopscout/internal/marketplace/ebay"
	"github.com/shopscout/shopscout/internal/marketplace/rainforest"
	"github.com/shopscout/shopscout/internal/verifier"
	"github.com/shopscout/shopscout/provider"
	"github.com/shopscout/shopscout/tools/web_search"
)

func researchAgentCMD() *cobra.Command {
	var addr string
	var cfgPath string
	var cmd = &cobra.Command{
		Use:   "research-agent",
		Short: "Run the product verification agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)

			llm, err := provider.NewProvider(cfg.LLM)
			if err != nil {
				return err
			}
			apiKey := cfg.Sources.WebSearch.SerperAPIKey
			if web_search.Provider(cfg.Sources.WebSearch.Provider) == web_search.BraveProvider {
				apiKey = cfg.Sources.WebSearch.BraveAPIKey
			}
			searcher, err := web_search.NewWebSearcher(web_search.Provider(cfg.Sources.WebSearch.Provider), apiKey)
			if err != nil {
				return err
			}

			svc := &agents.ResearchService{
				Verifier: verifier.New(searcher, llm, cfg.Sources.WebSearch.MaxResults),
			}
			if addr == "" {
				addr = cfg.Agents.ResearchListen
			}
			return svc.Run(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	return cmd
}

func ebayAgentCMD() *cobra.Command {
	var addr string
	var cfgPath string
	var cmd = &cobra.Command{
		Use:   "ebay-agent",
		Short: "Run the eBay search agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			svc := &agents.SearchService{
				Source: marketplace.SourceEBay,
				Client: ebay.NewClient(cfg.Marketplaces.EBay),
			}
			if addr == "" {
				addr = cfg.Agents.EBayListen
			}
			return svc.Run(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	return cmd
}

func amazonAgentCMD() *cobra.Command {
	var addr string
	var cfgPath string
	var cmd = &cobra.Command{
		Use:   "amazon-agent",
		Short: "Run the Amazon search agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			svc := &agents.SearchService{
				Source: marketplace.SourceAmazon,
				Client: rainforest.NewClient(cfg.Marketplaces.Rainforest),
			}
			if addr == "" {
				addr = cfg.Agents.AmazonListen
			}
			return svc.Run(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	return cmd
}
