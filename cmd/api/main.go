package main

// @title           University Request Portal API
// @version         1.0
// @description     Multi-stage approval workflow for equipment loans, activity plans and budget requests.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	Execute()
}
