// Package client is the Go SDK for the payledger HTTP API.
//
// Every mutating call needs a caller token, which binds the bearer to one
// ledger address:
//
//	c, err := client.New("http://localhost:8080", client.WithBearerToken(token))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Submitting a payroll
//
// Non-native assets are pulled from the caller, so the caller approves the
// ledger's custody account first:
//
//	amount, _ := units.ParseUnits("2500", 18)
//	p, err := c.SubmitPayroll(ctx, usdc, amount, 42)
//
// # Withdrawing (admin)
//
// Withdrawal is idempotent; a retried batch moves nothing and succeeds:
//
//	events, err := c.WithdrawPayrolls(ctx, []client.PayrollWithdrawal{
//	    {ID: 42, Asset: usdc, Amount: amount},
//	})
//
// # Errors
//
// Rejections come back as *APIError carrying the ledger's error code:
//
//	var apiErr *client.APIError
//	if errors.As(err, &apiErr) && apiErr.Code == "DuplicatePayroll" {
//	    // already submitted
//	}
package client
