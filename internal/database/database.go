package database

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/gocql/gocql"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"
)

// --- Variables Globales ---
var (
	Mongo       *mongo.Database
	MongoClient *mongo.Client
	Scylla      *gocql.Session
	Redis       *redis.Client
	Elastic     *elasticsearch.Client
	MinIO       *minio.Client
)

// --- Initialisation ---
func ConnectDatabases() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 1. MongoDB : base principale (produits, paniers, commandes)
	connectMongo(ctx)

	// 2. ScyllaDB : flux d'audit des mouvements de stock et alertes
	connectScylla()

	// 3. Redis : cache, pub/sub panier, rate limiting
	connectRedis(ctx)

	// 4. Elasticsearch : recherche produits
	connectElastic()

	// 5. MinIO : stockage des factures PDF
	connectMinIO(ctx)

	log.Println("✅ Toutes les bases de données sont connectées")
}

// =============================================
// MONGODB (base principale)
// =============================================
func connectMongo(ctx context.Context) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	dbName := os.Getenv("MONGO_DB")
	if dbName == "" {
		dbName = "souq"
	}

	client, err := mongo.Connect(ctx, mongooptions.Client().ApplyURI(uri))
	if err != nil {
		log.Fatal("❌ Erreur connexion MongoDB:", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		log.Fatal("❌ MongoDB injoignable:", err)
	}

	MongoClient = client
	Mongo = client.Database(dbName)
	log.Println("✅ Connecté à MongoDB :", dbName)

	ensureIndexes(ctx)
}

// Accès aux collections.
func Products() *mongo.Collection         { return Mongo.Collection("products") }
func Carts() *mongo.Collection            { return Mongo.Collection("carts") }
func Orders() *mongo.Collection           { return Mongo.Collection("orders") }
func Coupons() *mongo.Collection          { return Mongo.Collection("coupons") }
func Users() *mongo.Collection            { return Mongo.Collection("users") }
func DeliveryProfiles() *mongo.Collection { return Mongo.Collection("delivery_profiles") }
func Settings() *mongo.Collection         { return Mongo.Collection("settings") }

// =============================================
// SCYLLA DB (flux de mouvements stock)
// =============================================
func connectScylla() {
	hosts := strings.Split(os.Getenv("SCYLLA_HOSTS"), ",")
	if len(hosts) == 1 && hosts[0] == "" {
		hosts = []string{"localhost"}
	}
	keyspace := os.Getenv("SCYLLA_KEYSPACE")
	if keyspace == "" {
		keyspace = "souq_inventory"
	}

	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 5 * time.Second
	cluster.NumConns = 20
	cluster.ReconnectInterval = 1 * time.Second
	if user := os.Getenv("SCYLLA_USERNAME"); user != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: user,
			Password: os.Getenv("SCYLLA_PASSWORD"),
		}
	}
	cluster.PoolConfig.HostSelectionPolicy = gocql.TokenAwareHostPolicy(gocql.RoundRobinHostPolicy())

	session, err := cluster.CreateSession()
	if err != nil {
		// Le flux d'audit est best-effort : le serveur démarre sans Scylla,
		// les mouvements ne seront simplement pas historisés côté analytique.
		log.Printf("⚠️  ScyllaDB indisponible (%v) — flux de mouvements désactivé", err)
		return
	}
	// Note: les tables stock_movements et stock_alerts doivent être créées
	// via scripts/scylladb_init.cql
	Scylla = session
	log.Println("✅ Connecté à ScyllaDB, keyspace :", keyspace)
}

// CloseScylla ferme la session ScyllaDB.
func CloseScylla() {
	if Scylla != nil {
		Scylla.Close()
		log.Println("🔌 Session ScyllaDB fermée")
	}
}

// =============================================
// REDIS
// =============================================
func connectRedis(ctx context.Context) {
	Redis = redis.NewClient(&redis.Options{
		Addr:     os.Getenv("REDIS_HOST"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	})

	if err := Redis.Ping(ctx).Err(); err != nil {
		log.Fatal("❌ Erreur connexion Redis:", err)
	}
	log.Println("✅ Connecté à Redis")
}

// =============================================
// ELASTICSEARCH
// =============================================
func connectElastic() {
	cfg := elasticsearch.Config{
		Addresses: []string{os.Getenv("ELASTIC_URL")},
		Username:  os.Getenv("ELASTIC_USER"),
		Password:  os.Getenv("ELASTIC_PASSWORD"),
	}

	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		log.Fatal("❌ Erreur création client Elasticsearch:", err)
	}

	res, err := client.Info()
	if err != nil {
		log.Fatal("❌ Erreur connexion Elasticsearch:", err)
	}
	defer res.Body.Close()

	Elastic = client
	log.Println("✅ Connecté à Elasticsearch")
}

// =============================================
// MINIO
// =============================================
func connectMinIO(ctx context.Context) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	accessKey := os.Getenv("MINIO_ACCESS_KEY")
	secretKey := os.Getenv("MINIO_SECRET_KEY")
	useSSL := os.Getenv("MINIO_USE_SSL") == "true"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		log.Fatal("❌ Erreur connexion MinIO:", err)
	}

	bucketName := os.Getenv("MINIO_BUCKET")
	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		log.Fatal("❌ Erreur vérification bucket MinIO:", err)
	}
	if !exists {
		err = client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			log.Fatal("❌ Erreur création bucket MinIO:", err)
		}
		log.Println("🪣 Bucket créé :", bucketName)
	} else {
		log.Println("🪣 Bucket MinIO déjà présent :", bucketName)
	}

	MinIO = client
	log.Println("✅ Connecté à MinIO :", endpoint)
}
