/*
Package client is a Go client for the panelsync HTTP API, used by the CLI.

	c := client.NewClient("http://127.0.0.1:8080")
	result, err := c.Sync(ctx, client.SyncOptions{})
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.Kind == "perimeter_blocked" {
			fmt.Println(apiErr.Guidance)
		}
		return err
	}
	fmt.Printf("created %d, updated %d, deleted %d\n", result.Created, result.Updated, result.Deleted)

Non-2xx responses are returned as *APIError carrying the server's error
kind and operator guidance.
*/
package client
