package db

import (
	"database/sql"
	"fmt"
	"time"

	"soundvault/config"
	"soundvault/logger"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ConnectGorm opens the MySQL connection pool and wraps it with GORM.
// The pool is opened through database/sql first so its limits can be set
// before GORM takes over.
func ConnectGorm(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	sqlDB, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err = sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	gormDB, err := gorm.Open(gormmysql.New(gormmysql.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Warn),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect database with GORM: %w", err)
	}

	logger.Info("Successfully connected to MySQL",
		logger.String("host", cfg.DBHost),
		logger.String("database", cfg.DBName),
	)
	return gormDB, nil
}

// CloseGorm closes the underlying connection pool of a GORM handle.
func CloseGorm(gormDB *gorm.DB) error {
	if gormDB == nil {
		return nil
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}
