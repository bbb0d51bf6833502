package app

import (
	"github.com/attunefm/attune/session"
	"github.com/gorilla/mux"
)

func (a *App) initRouter() {
	a.Router = mux.NewRouter()

	// health
	a.Router.HandleFunc("/health", a.Controller.Health).Methods("GET", "OPTIONS")

	// session socket; peers dial this directly
	a.Router.HandleFunc(session.SocketPath, a.Controller.JoinSocket).Methods("GET")

	// hosted room surface
	a.Router.HandleFunc("/room", a.Controller.GetRoom).Methods("GET", "OPTIONS")
	a.Router.HandleFunc("/room/queue", a.Controller.GetQueue).Methods("GET", "OPTIONS")
	a.Router.HandleFunc("/room/queue", a.Controller.PushToQueue).Methods("POST", "OPTIONS")
	a.Router.HandleFunc("/room/history", a.Controller.GetHistory).Methods("GET", "OPTIONS")
	a.Router.HandleFunc("/room/invite", a.Controller.CreateInvite).Methods("POST", "OPTIONS")

	// directory surface, served when this process is a home server
	a.Router.HandleFunc("/rooms", a.Controller.ListRooms).Methods("GET", "OPTIONS")
	a.Router.HandleFunc("/rooms", a.Controller.AnnounceRoom).Methods("POST", "OPTIONS")
	a.Router.HandleFunc("/rooms/{code}", a.Controller.ResolveRoom).Methods("GET", "OPTIONS")
	a.Router.HandleFunc("/rooms/{code}", a.Controller.DelistRoom).Methods("DELETE")

	a.Router.HandleFunc("/version", a.Controller.GetVersion).Methods("GET", "OPTIONS")

	a.Router.HandleFunc("/admin/logs", a.Controller.GetLogsByDate).Methods("GET", "OPTIONS")
	a.Router.HandleFunc("/admin/general", a.Controller.GetGeneralInfo).Methods("GET", "OPTIONS")
}
