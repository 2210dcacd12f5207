package cmd

import (
	"fmt"
	"strconv"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/BrotherHong/rag-web-backend/src/storage/postgres/documentctrl"
)

var processScopeID int64

var processCmd = &cobra.Command{
	Use:   "process [document-id...]",
	Short: "Run the ingest pipeline for pending documents",
	Long: `The process command runs the ingest pipeline directly, without the
HTTP server or message queue. With no arguments it processes every pending
document in the scope; otherwise only the given document IDs.`,
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)
	processCmd.Flags().Int64Var(&processScopeID, "scope", 0, "scope ID to process")
	processCmd.MarkFlagRequired("scope")
}

func runProcess(cmd *cobra.Command, args []string) error {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	docService, err := documentctrl.NewDocumentService(db)
	if err != nil {
		return err
	}
	if err := docService.AutoMigrate(); err != nil {
		return err
	}

	ctx := cmd.Context()

	var ids []int64
	if len(args) > 0 {
		for _, arg := range args {
			id, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid document ID %q: %v", arg, err)
			}
			ids = append(ids, id)
		}
	} else {
		ids, err = docService.ListPending(ctx, processScopeID)
		if err != nil {
			return err
		}
	}

	if len(ids) == 0 {
		fmt.Println("No documents to process")
		return nil
	}

	minioService, err := newMinioService()
	if err != nil {
		return err
	}

	pipe := newPipeline(docService, newScopeStore(), minioService, nil)

	bar := progressbar.Default(int64(len(ids)), "processing")
	result := pipe.ProcessBatch(ctx, ids, viper.GetInt("pipeline.max_parallel"), func(done, total int) {
		bar.Set(done)
	})

	fmt.Printf("\nProcessed %d documents: %d succeeded, %d failed\n",
		result.Total, result.Success, result.Failed)
	for _, msg := range result.Errors {
		fmt.Println("  " + msg)
	}

	if result.Failed > 0 {
		return fmt.Errorf("%d of %d documents failed", result.Failed, result.Total)
	}
	return nil
}
