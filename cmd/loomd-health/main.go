// loomd-health is a tiny standalone liveness endpoint for deployments
// that separate health probing from the main API process.
package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
)

func main() {
	addr := flag.String("addr", ":8081", "listen address for the health endpoint")
	ver := flag.String("version", "dev", "version string to return")
	flag.Parse()

	h := func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/health", "/healthz":
			ctx.Response.Header.Set("Content-Type", "application/json")
			ctx.SetStatusCode(fasthttp.StatusOK)
			_, _ = ctx.WriteString(fmt.Sprintf("{\"status\":\"ok\",\"version\":\"%s\"}", *ver))
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
		}
	}

	fmt.Printf("loomd-health listening on %s\n", *addr)
	srv := &fasthttp.Server{
		Handler:            h,
		Name:               "loomd-health",
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       5 * time.Second,
		MaxRequestBodySize: 1 << 20,
	}
	if err := srv.ListenAndServe(*addr); err != nil {
		fmt.Printf("health server exit: %v\n", err)
	}
}
