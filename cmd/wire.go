package cmd

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/BrotherHong/rag-web-backend/src/core/document"
	"github.com/BrotherHong/rag-web-backend/src/core/pipeline"
	"github.com/BrotherHong/rag-web-backend/src/core/rag"
	"github.com/BrotherHong/rag-web-backend/src/infrastructure/integrations/ollama"
	"github.com/BrotherHong/rag-web-backend/src/infrastructure/integrations/reranker"
	"github.com/BrotherHong/rag-web-backend/src/storage/minioctrl"
	"github.com/BrotherHong/rag-web-backend/src/storage/postgres/documentctrl"
	"github.com/BrotherHong/rag-web-backend/src/storage/scopestore"
)

func openDatabase() (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		viper.GetString("postgres.host"),
		viper.GetString("postgres.user"),
		viper.GetString("postgres.password"),
		viper.GetString("postgres.db"),
		viper.GetString("postgres.port"))

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}
	return db, nil
}

func newOllamaProvider() *ollama.Provider {
	client := ollama.NewClient(viper.GetString("ollama.url"), &http.Client{
		Timeout: 300 * time.Second,
	})
	return ollama.NewProvider(client,
		viper.GetString("ollama.generate_model"),
		viper.GetString("ollama.embedding_model"))
}

func newRerankerClient() *reranker.Client {
	return reranker.NewClient(
		viper.GetString("rerank.url"),
		viper.GetString("rerank.model"),
		&http.Client{Timeout: 60 * time.Second})
}

func newConverter() *document.Converter {
	return document.NewConverter(document.ConverterConfig{
		SofficeCmd:      viper.GetString("tools.soffice"),
		MineruCmd:       viper.GetString("tools.mineru"),
		MarkitdownCmd:   viper.GetString("tools.markitdown"),
		UseMineruForPDF: viper.GetBool("tools.use_mineru_for_pdf"),
	})
}

func newScopeStore() *scopestore.Store {
	return scopestore.NewStore(viper.GetString("storage.upload_dir"))
}

func newMinioService() (*minioctrl.MinioService, error) {
	if !viper.GetBool("minio.enabled") {
		return nil, nil
	}
	return minioctrl.NewMinioService(
		viper.GetString("minio.endpoint"),
		viper.GetString("minio.access_key"),
		viper.GetString("minio.secret_key"),
		viper.GetString("minio.bucket"),
		viper.GetString("minio.domain"),
		viper.GetBool("minio.use_ssl"))
}

func newPipeline(docs *documentctrl.DocumentService, scopes *scopestore.Store, minioService *minioctrl.MinioService, onCompleted func(scopeID int64)) *pipeline.Pipeline {
	provider := newOllamaProvider()

	deps := pipeline.Deps{
		Store:           docs,
		Scopes:          scopes,
		Converter:       newConverter(),
		Summarizer:      document.NewSummarizer(provider),
		Embedder:        document.NewEmbedder(provider),
		OnCompleted:     onCompleted,
		RetainWorkspace: viper.GetBool("pipeline.retain_workspace"),
	}

	if minioService != nil {
		deps.Links = func(doc *documentctrl.Document) (string, string) {
			object := fmt.Sprintf("%d/%s", doc.ScopeID, doc.StoredFilename)
			url := minioService.ObjectURL(object)
			return url, url
		}
	}

	return pipeline.New(deps)
}

func newEngineFactory(scopes *scopestore.Store) func(scopeID int64) (*rag.Engine, error) {
	provider := newOllamaProvider()
	rerankClient := newRerankerClient()

	cfg := rag.Config{
		SimilarityThreshold: viper.GetFloat64("rag.similarity_threshold"),
		RetrievalWidth:      viper.GetInt("rag.retrieval_width"),
		MaxContextDocs:      viper.GetInt("rag.max_context_docs"),
		Debug:               viper.GetBool("rag.debug"),
	}

	return func(scopeID int64) (*rag.Engine, error) {
		index := rag.NewVectorIndex(filepath.Join(scopes.ScopeDir(scopeID), "processed"))
		if err := index.Load(); err != nil {
			return nil, fmt.Errorf("failed to load vector index: %w", err)
		}
		return rag.NewEngine(index, provider, provider, rerankClient, cfg), nil
	}
}

func uploadLimits() (int64, map[string]struct{}) {
	allowed := make(map[string]struct{})
	for _, ext := range viper.GetStringSlice("upload.allowed_extensions") {
		allowed[strings.ToLower(ext)] = struct{}{}
	}
	return viper.GetInt64("upload.max_file_size"), allowed
}
