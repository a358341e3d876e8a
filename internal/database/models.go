package database

// Article represents a stored article. The annotation fields are filled by
// the external extraction pipeline and may be nil.
type Article struct {
	ID                int64
	URL               string
	Title             string
	Source            *string
	PublishedDate     *string
	Content           *string
	LocationMention   *string
	OfficialsInvolved *string
	RelevanceCategory *string
	CollectedAt       *string
}

// Link is one related article written back by an index run.
type Link struct {
	ArticleID int64
	Rank      int
	LinkedID  int64
	Score     float64
	Method    string
}

// ScoredArticle pairs an article with its importance.
type ScoredArticle struct {
	Article
	Score float64
}

// Cluster is a stored group of related articles.
type Cluster struct {
	ID             int64
	Title          string
	Method         string
	ArticleIDs     []int64
	StartDate      *string
	EndDate        *string
	ReferenceCount int
	Priority       int
	CreatedAt      *string
}

// IndexRun records one completed index rebuild.
type IndexRun struct {
	ID           int64
	Generation   string
	ArticleCount int
	EdgeCount    int
	ClusterCount int
	SnapshotPath *string
	BuiltAt      *string
}

// Stats contains aggregate database statistics.
type Stats struct {
	TotalArticles       int
	AnnotatedArticles   int
	LinkedArticles      int
	RankedArticles      int
	Clusters            int
	PrioritizedClusters int
	IndexRuns           int
}
