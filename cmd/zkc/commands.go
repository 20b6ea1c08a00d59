package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"zk-carbon/contract-runner/internal/chain"
	"zk-carbon/contract-runner/internal/contract"
)

type callFlags struct {
	kind     string
	contract string
	function string
	params   string
}

func (f *callFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.kind, "type", "query", "execute or query")
	cmd.Flags().StringVar(&f.contract, "contract", "", "contract address (defaults to the configured contract)")
	cmd.Flags().StringVar(&f.function, "function", "", "contract function name")
	cmd.Flags().StringVar(&f.params, "params", "", "JSON object of function arguments")
	_ = cmd.MarkFlagRequired("function")
}

func (f *callFlags) request(a *app) (contract.CommandRequest, error) {
	req := contract.CommandRequest{
		Type:            f.kind,
		ContractAddress: f.contract,
		FunctionName:    f.function,
	}
	if req.ContractAddress == "" {
		req.ContractAddress = a.cfg.Contract.Address
	}
	if f.params != "" {
		if !json.Valid([]byte(f.params)) {
			return req, fmt.Errorf("--params is not valid JSON")
		}
		req.QueryParams = json.RawMessage(f.params)
	}
	return req, nil
}

func (a *app) buildCmd() *cobra.Command {
	var flags callFlags
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Print the injectived command line without running it",
		Example: `zkc build --type query --function get_config
zkc build --type execute --function cast_vote --params '{"claim_id":1,"vote":"Yes"}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request(a)
			if err != nil {
				return err
			}
			built, err := a.builder.Build(chain.Request{
				Kind:            chain.Kind(req.Type),
				ContractAddress: req.ContractAddress,
				FunctionName:    req.FunctionName,
				Params:          req.QueryParams,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, built.String())
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func (a *app) runCmd() *cobra.Command {
	var flags callFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a contract call and print the raw CLI output",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request(a)
			if err != nil {
				return err
			}
			out, err := a.service.RunCommand(cmd.Context(), req)
			if err != nil {
				return err
			}
			_, err = a.out.Write(out)
			return err
		},
	}
	flags.register(cmd)
	return cmd
}

func (a *app) organizationsCmd() *cobra.Command {
	var opts contract.ListOptions
	cmd := &cobra.Command{
		Use:     "organizations",
		Aliases: []string{"orgs"},
		Short:   "List registered organizations",
		RunE: func(cmd *cobra.Command, args []string) error {
			orgs, err := a.service.ListOrganizations(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return a.printJSON(orgs)
		},
	}
	cmd.Flags().StringVar(&opts.StartAfter, "start-after", "", "organization address to page after")
	cmd.Flags().Uint32Var(&opts.Limit, "limit", 0, "page size")
	return cmd
}

func (a *app) claimsCmd() *cobra.Command {
	var (
		opts   contract.ListOptions
		status string
	)
	cmd := &cobra.Command{
		Use:   "claims",
		Short: "List claims, optionally filtered by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			claims, err := a.service.ListClaims(cmd.Context(), contract.ClaimStatus(status), opts)
			if err != nil {
				return err
			}
			return a.printJSON(claims)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Active, Approved or Rejected")
	cmd.Flags().StringVar(&opts.StartAfter, "start-after", "", "claim id to page after")
	cmd.Flags().Uint32Var(&opts.Limit, "limit", 0, "page size")
	return cmd
}

func (a *app) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the contract configuration stored on chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.service.GetConfig(cmd.Context())
			if err != nil {
				return err
			}
			return a.printJSON(cfg)
		},
	}
}
