// Command resto runs the UVCI Resto ordering API.
//
//	resto serve             # HTTP API, gRPC health, workers and scheduler
//	resto migrate           # run pending migrations
//	resto migrate:rollback
//	resto migrate:status
//	resto seed              # starter menu and admin accounts
//	resto route:list
//	resto queue:work -w 4   # queue workers only
//	resto schedule:run      # scheduler only
//
// Configuration is read from config/app.json, .env and the process
// environment, later sources winning.
package main
