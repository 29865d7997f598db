//go:build integration

package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cucumber/godog"

	"caixa/internal/core"
)

func registerSteps(ctx *godog.ScenarioContext) {
	ctx.Step(`^the remote API has these "([^"]*)":$`, theRemoteAPIHasThese)
	ctx.Step(`^the remote API has no "([^"]*)"$`, theRemoteAPIHasNo)
	ctx.Step(`^the dashboard is running with saldo inicial (-?\d+(?:\.\d+)?)$`, theDashboardIsRunning)
	ctx.Step(`^the remote API fails the next request with status (\d+)$`, theRemoteAPIFailsTheNextRequest)
	ctx.Step(`^I send a "([^"]*)" request to the dashboard at "([^"]*)"$`, iSendARequestTo)
	ctx.Step(`^I submit the records form with:$`, iSubmitTheRecordsForm)
	ctx.Step(`^I delete "([^"]*)" entry "([^"]*)"$`, iDeleteEntry)
	ctx.Step(`^the response status should be (\d+)$`, theResponseStatusShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, theResponseFieldShouldBe)
	ctx.Step(`^the response should contain "([^"]*)"$`, theResponseShouldContain)
	ctx.Step(`^the remote API should have (\d+) "([^"]*)"$`, theRemoteAPIShouldHave)
	ctx.Step(`^the dashboard should show (\d+) "([^"]*)"$`, theDashboardShouldShow)
}

func theRemoteAPIHasThese(ctx context.Context, kindName string, table *godog.Table) error {
	tc := GetTestContext(ctx)
	kind, err := core.ParseKind(kindName)
	if err != nil {
		return err
	}
	if len(table.Rows) < 2 {
		return fmt.Errorf("table needs a header and at least one row")
	}

	header := table.Rows[0].Cells
	for _, row := range table.Rows[1:] {
		var d core.Draft
		for i, cell := range row.Cells {
			switch header[i].Value {
			case "tipo":
				d.Tipo = cell.Value
			case "valor":
				d.Valor = core.Valor(cell.Value)
			case "data":
				d.Data = cell.Value
			default:
				return fmt.Errorf("unknown column %q", header[i].Value)
			}
		}
		tc.seed(kind, d)
	}
	return nil
}

func theRemoteAPIHasNo(ctx context.Context, kindName string) error {
	kind, err := core.ParseKind(kindName)
	if err != nil {
		return err
	}
	delete(GetTestContext(ctx).seeds, kind)
	return nil
}

func theDashboardIsRunning(ctx context.Context, initial string) error {
	v, err := strconv.ParseFloat(initial, 64)
	if err != nil {
		return err
	}
	return GetTestContext(ctx).start(v)
}

func theRemoteAPIFailsTheNextRequest(ctx context.Context, status int) error {
	tc := GetTestContext(ctx)
	if tc.stub == nil {
		return fmt.Errorf("the dashboard is not running")
	}
	tc.stub.FailNext(status)
	return nil
}

func iSendARequestTo(ctx context.Context, method, path string) error {
	tc := GetTestContext(ctx)
	if tc.appServer == nil {
		return fmt.Errorf("the dashboard is not running")
	}
	req, err := http.NewRequestWithContext(ctx, method, tc.appServer.URL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return tc.do(req)
}

func iSubmitTheRecordsForm(ctx context.Context, table *godog.Table) error {
	form := url.Values{}
	for _, row := range table.Rows[1:] {
		if len(row.Cells) != 2 {
			return fmt.Errorf("expected field | value rows")
		}
		form.Set(row.Cells[0].Value, row.Cells[1].Value)
	}
	return postForm(ctx, "/records", form)
}

func iDeleteEntry(ctx context.Context, kind, id string) error {
	return postForm(ctx, "/records/delete", url.Values{"kind": {kind}, "id": {id}})
}

func postForm(ctx context.Context, path string, form url.Values) error {
	tc := GetTestContext(ctx)
	if tc.appServer == nil {
		return fmt.Errorf("the dashboard is not running")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tc.appServer.URL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return tc.do(req)
}

func theResponseStatusShouldBe(ctx context.Context, expected int) error {
	tc := GetTestContext(ctx)
	if tc.response == nil {
		return fmt.Errorf("no response received")
	}
	if tc.response.StatusCode != expected {
		return fmt.Errorf("expected status %d, got %d. Body: %s", expected, tc.response.StatusCode, tc.responseBody)
	}
	return nil
}

func theResponseFieldShouldBe(ctx context.Context, field, expected string) error {
	tc := GetTestContext(ctx)
	var body map[string]any
	if err := json.Unmarshal(tc.responseBody, &body); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	value, ok := body[field]
	if !ok {
		return fmt.Errorf("field %q not found in response", field)
	}
	if got := fmt.Sprintf("%v", value); got != expected {
		return fmt.Errorf("expected field %q to be %q, got %q", field, expected, got)
	}
	return nil
}

func theResponseShouldContain(ctx context.Context, text string) error {
	tc := GetTestContext(ctx)
	if !strings.Contains(string(tc.responseBody), text) {
		return fmt.Errorf("expected response to contain %q, got: %s", text, tc.responseBody)
	}
	return nil
}

func theRemoteAPIShouldHave(ctx context.Context, n int, kindName string) error {
	kind, err := core.ParseKind(kindName)
	if err != nil {
		return err
	}
	if got := GetTestContext(ctx).remote.Len(kind); got != n {
		return fmt.Errorf("remote %s: expected %d entries, got %d", kind, n, got)
	}
	return nil
}

func theDashboardShouldShow(ctx context.Context, n int, kindName string) error {
	kind, err := core.ParseKind(kindName)
	if err != nil {
		return err
	}
	if got := len(GetTestContext(ctx).svc.Store().Get(kind)); got != n {
		return fmt.Errorf("dashboard %s: expected %d entries, got %d", kind, n, got)
	}
	return nil
}
