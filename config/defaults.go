package config

// Defaults returns the package default settings tree. Loaded files merge
// over this tree, so every dot-path used by the service resolves even with
// an empty config file.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"defaults": map[string]interface{}{
			"provider": "azure",
			"voice":    "",
			"format":   "mp3",
			"language": "en-US",
			"speed":    1.0,
		},
		"selection": map[string]interface{}{
			// "default" uses the configured default provider; "round_robin"
			// cycles through active providers.
			"mode": "default",
		},
		"providers": map[string]interface{}{
			"azure": map[string]interface{}{
				"api_key": "",
				"region":  "eastus",
			},
			"google": map[string]interface{}{
				"api_key":          "",
				"credentials_file": "",
			},
			"polly": map[string]interface{}{
				"region":            "us-east-1",
				"engine":            "neural",
				"access_key_id":     "",
				"secret_access_key": "",
			},
			"openai": map[string]interface{}{
				"api_key": "",
				"model":   "tts-1",
			},
			"elevenlabs": map[string]interface{}{
				"api_key":  "",
				"model_id": "eleven_multilingual_v2",
			},
		},
		"quotas": map[string]interface{}{},
		"profiles": map[string]interface{}{
			"dir": "",
		},
		"assets": map[string]interface{}{
			"dir": "",
		},
		"records": map[string]interface{}{
			"backend": "memory",
			"mysql": map[string]interface{}{
				"dsn":          "",
				"table":        "tts_records",
				"legacy_table": "",
			},
		},
		"storage": map[string]interface{}{
			"provider": "local",
			"local": map[string]interface{}{
				"base_dir":        "data/audio",
				"public_base_url": "",
				"retention":       "",
			},
			"s3": map[string]interface{}{
				"bucket":     "",
				"region":     "",
				"prefix":     "audio/",
				"public_url": "",
			},
			"buzzsprout": map[string]interface{}{
				"podcast_id": "",
				"api_token":  "",
			},
			"spotify": map[string]interface{}{
				"client_id":     "",
				"client_secret": "",
				"refresh_token": "",
				"show_id":       "",
			},
		},
		"cache": map[string]interface{}{
			"enabled": true,
			"backend": "memory",
			"ttl":     "24h",
			"redis": map[string]interface{}{
				"addr":     "localhost:6379",
				"password": "",
				"db":       0,
			},
		},
		"rate_limit": map[string]interface{}{
			"max_requests": 10,
			"window":       "60s",
		},
		"player": map[string]interface{}{
			"theme":         "default",
			"autoplay":      false,
			"preload":       "metadata",
			"show_download": false,
		},
		"server": map[string]interface{}{
			"addr":         ":8080",
			"metrics_addr": ":9100",
			"auth": map[string]interface{}{
				"mode":       "none",
				"api_key":    "",
				"jwt_secret": "",
			},
		},
		"scheduler": map[string]interface{}{
			"cache_cleanup_interval":    "24h",
			"analytics_update_interval": "1h",
			"quota_reset_interval":      "24h",
			"health_check_interval":     "15m",
			"lock_dir":                  "",
		},
		"events": map[string]interface{}{
			"enabled":       false,
			"nats_url":      "nats://127.0.0.1:4222",
			"queue_subject": "audiopress.tts.requests",
			"workers":       2,
		},
		"telemetry": map[string]interface{}{
			"enabled":      false,
			"endpoint":     "",
			"service_name": "audiopress",
		},
	}
}
