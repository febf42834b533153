package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openkcm/oidc-login/internal/business"
	"github.com/openkcm/oidc-login/internal/cmdutils"
	"github.com/openkcm/oidc-login/internal/dispatcher"
)

const loginFailed = "Login failed, run `oidc-login login` to start a new login."

func loginCmd(buildInfo string) *cobra.Command {
	cmd := cmdutils.CobraCommand(
		"login",
		"Log in through the browser",
		"Opens the provider login page and waits for the redirect on the local callback URL.",
		buildInfo,
		cobra.NoArgs,
		withApp(func(ctx context.Context, app *business.App, _ []string) error {
			if err := app.Login(ctx); err != nil {
				_, _ = fmt.Fprintln(os.Stderr, loginFailed)
				return err
			}

			return nil
		}),
	)

	cmd.AddCommand(
		cmdutils.CobraCommand(
			"begin",
			"Start a login and print the authorization URL",
			"Persists the login proof in the configured store. Finish with `login complete`.",
			buildInfo,
			cobra.NoArgs,
			withApp(func(ctx context.Context, app *business.App, _ []string) error {
				_, err := app.LoginBegin(ctx)
				return err
			}),
		),
		cmdutils.CobraCommand(
			"complete <callback-url>",
			"Finish a login from the URL the provider redirected to",
			"Validates the callback against the persisted proof and exchanges the code for tokens.",
			buildInfo,
			cobra.ExactArgs(1),
			withApp(func(ctx context.Context, app *business.App, args []string) error {
				if err := app.LoginComplete(ctx, args[0]); err != nil {
					_, _ = fmt.Fprintln(os.Stderr, loginFailed)
					return err
				}

				return nil
			}),
		),
	)

	return cmd
}

func logoutCmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"logout",
		"Forget the tokens of the current login",
		"Clears the tokens and any pending login proof of the scope.",
		buildInfo,
		cobra.NoArgs,
		withApp(func(ctx context.Context, app *business.App, _ []string) error {
			return app.Logout(ctx)
		}),
	)
}

func callCmd(buildInfo string) *cobra.Command {
	var (
		method string
		data   string
	)

	cmd := cmdutils.CobraCommand(
		"call <url>",
		"Call an API with the access token",
		"Sends the request with the bearer token, retrying per the retry settings.",
		buildInfo,
		cobra.ExactArgs(1),
		withApp(func(ctx context.Context, app *business.App, args []string) error {
			var body any
			if data != "" {
				if !json.Valid([]byte(data)) {
					return errors.New("--data is not valid JSON")
				}
				body = json.RawMessage(data)
			}

			_, err := app.Call(ctx, strings.ToUpper(method), args[0], body)
			return err
		}),
	)

	cmd.Flags().StringVarP(&method, "method", "X", http.MethodGet, "HTTP method")
	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")

	return cmd
}

func dispatcherCmd(buildInfo string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dispatcher",
		Short: "Pipeline dispatcher API",
	}

	status := dispatcher.DefaultStatusRequest()
	statusCmd := cmdutils.CobraCommand(
		"status",
		"Show the latest dispatcher messages",
		"Reads run events from the dispatcher queue.",
		buildInfo,
		cobra.NoArgs,
		withApp(func(ctx context.Context, app *business.App, _ []string) error {
			msgs, err := app.DispatcherStatus(ctx, status)
			if err != nil {
				return err
			}

			return printJSON(msgs)
		}),
	)
	statusCmd.Flags().BoolVar(&status.Summary, "summary", false, "only return a summary")
	statusCmd.Flags().Uint8Var(&status.MessageCount, "count", status.MessageCount, "number of messages")
	statusCmd.Flags().BoolVar(&status.Dequeue, "dequeue", false, "remove the returned messages from the queue")

	var (
		req    dispatcher.DispatchRequest
		params []string
		whatIf bool
	)
	dispatchCmd := cmdutils.CobraCommand(
		"dispatch",
		"Submit a pipeline run",
		"Dispatches a pipeline with the given configuration, pipeline and parameters.",
		buildInfo,
		cobra.NoArgs,
		withApp(func(ctx context.Context, app *business.App, _ []string) error {
			parsed, err := parseParams(params)
			if err != nil {
				return err
			}
			req.ParametersJSON = parsed

			res, err := app.Dispatch(ctx, whatIf, req)
			if err != nil {
				return err
			}

			return printJSON(res)
		}),
	)
	dispatchCmd.Flags().StringVar(&req.ConfigURI, "config-uri", "", "pipeline configuration URI")
	dispatchCmd.Flags().StringVar(&req.PipelineURI, "pipeline-uri", "", "pipeline URI")
	dispatchCmd.Flags().StringVar(&req.ParametersURI, "parameters-uri", "", "parameters file URI")
	dispatchCmd.Flags().StringArrayVar(&params, "param", nil, "pipeline parameter as name=value, repeatable")
	dispatchCmd.Flags().BoolVar(&req.AutoDelete, "auto-delete", true, "delete the container when the run ends")
	dispatchCmd.Flags().BoolVar(&whatIf, "what-if", false, "validate without dispatching")

	cmd.AddCommand(statusCmd, dispatchCmd)

	return cmd
}

func workflowsCmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"workflows <org> <repo>",
		"List the Nextflow workflows of a GitHub repository",
		"Lists nextflow/pipelines and pairs every pipeline with every parameters file, giving the URIs dispatcher dispatch takes.",
		buildInfo,
		cobra.ExactArgs(2),
		withApp(func(ctx context.Context, app *business.App, args []string) error {
			wfs, err := app.Workflows(ctx, args[0], args[1])
			if err != nil {
				return err
			}

			return printJSON(wfs)
		}),
	)
}

// parseParams turns name=value pairs into dispatcher parameters. Values that
// parse as JSON keep their type.
func parseParams(pairs []string) ([]dispatcher.Param, error) {
	params := make([]dispatcher.Param, 0, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("parameter %q is not name=value", pair)
		}

		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		params = append(params, dispatcher.Param{Name: name, Value: value})
	}

	return params, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
