package cmd

import (
	"github.com/spf13/cobra"

	"meetingMinutes/server"
	"meetingMinutes/storage"
)

var port string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP processing service",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := storage.InitStore(); err != nil {
			return err
		}
		return server.ListenAndServe(":" + port)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&port, "port", "p", "8080", "listen port")
	rootCmd.AddCommand(serveCmd)
}
