package app

import (
	"log"
	"net/http"

	"github.com/attunefm/attune/controller"
	"github.com/gorilla/mux"
)

type App struct {
	Router     *mux.Router
	Controller *controller.Controller
}

func (a *App) Initialize(c *controller.Controller) {
	a.Controller = c
	a.initRouter()
}

func (a *App) Run(addr string) {
	log.Printf("serving on %s...", addr)
	log.Fatalf("server error: %s", http.ListenAndServe(addr, a.withMiddleware(a.Router)))
}
